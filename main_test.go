package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/adahad27/compiler/pkg/config"
	"github.com/adahad27/compiler/pkg/di"
)

const gcdSource = `int gcd(int a, int b) {
    while (b != 0) {
        int t = b;
        b = a - a / b * b;
        a = t;
    }
    return a;
}

int main() {
    return gcd(1071, 462);
}
`

func TestDefaultOutputPath(t *testing.T) {
	be.Equal(t, defaultOutputPath("prog.c", ".asm"), "prog.asm")
	be.Equal(t, defaultOutputPath("dir/prog.c", ".s"), "dir/prog.s")
	be.Equal(t, defaultOutputPath("prog", ".asm"), "prog.asm")
	be.Equal(t, defaultOutputPath("prog.c", ""), "prog.asm")
}

func TestCompileFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "gcd.c")
	be.Err(t, os.WriteFile(in, []byte(gcdSource), 0o644), nil)

	c, err := di.Load("")
	be.Err(t, err, nil)
	defer c.Shutdown()

	res, out, err := compileFile(c, in, "")
	be.Err(t, err, nil)
	be.Equal(t, out, filepath.Join(dir, "gcd.asm"))

	written, err := os.ReadFile(out)
	be.Err(t, err, nil)
	be.Equal(t, string(written), res.Assembly)

	exit, err := c.Runner().Run(res.Image)
	be.Err(t, err, nil)
	be.Equal(t, exit, int64(21))
}

func TestCompileFileWithConfig(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "gcd.c")
	be.Err(t, os.WriteFile(in, []byte(gcdSource), 0o644), nil)

	toml := `[target]
entry_label = "begin"
registers = ["r12", "r13", "r14"]

[output]
comments = true
extension = ".s"
`
	be.Err(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(toml), 0o644), nil)

	c, err := di.Load(filepath.Join(dir, config.FileName))
	be.Err(t, err, nil)
	defer c.Shutdown()

	res, out, err := compileFile(c, in, "")
	be.Err(t, err, nil)
	be.Equal(t, filepath.Ext(out), ".s")
	be.True(t, strings.HasPrefix(res.Assembly, "global begin\nbegin:\n"))
	be.True(t, strings.Contains(res.Assembly, "; return a;"))
	be.True(t, !strings.Contains(res.Assembly, "rbx"))

	exit, err := c.Runner().Run(res.Image)
	be.Err(t, err, nil)
	be.Equal(t, exit, int64(21))
}

func TestCompileFileErrors(t *testing.T) {
	dir := t.TempDir()
	c := di.NewContainer(config.Default())
	defer c.Shutdown()

	_, _, err := compileFile(c, filepath.Join(dir, "missing.c"), "")
	be.Err(t, err, "failed to read input file")

	bad := filepath.Join(dir, "bad.c")
	be.Err(t, os.WriteFile(bad, []byte("int main() { return x; }"), 0o644), nil)
	_, _, err = compileFile(c, bad, "")
	be.Err(t, err, "compilation failed")

	_, err = os.Stat(filepath.Join(dir, "bad.asm"))
	be.True(t, os.IsNotExist(err))
}
