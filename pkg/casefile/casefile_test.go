package casefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nalgeon/be"
)

const doc = `# Arithmetic

Some prose that is not a case.

~~~
untagged fences are ignored
~~~

## Test: precedence

~~~c-program
int main() {
    return 2 + 3 * 4;
}
~~~

~~~asm-contains
imul
call main
~~~

~~~exit-code
14
~~~

## Test: undeclared

~~~c-program
int main() { return y; }
~~~

~~~compile-error
undeclared
~~~
`

func TestExtract(t *testing.T) {
	cases, err := Extract([]byte(doc))
	be.Err(t, err, nil)
	be.Equal(t, len(cases), 2)

	c := cases[0]
	be.Equal(t, c.Name, "precedence")
	be.Equal(t, c.Line, 9)
	be.Equal(t, c.Source, "int main() {\n    return 2 + 3 * 4;\n}")
	be.Equal(t, c.AsmContains, []string{"imul", "call main"})
	be.True(t, c.ExitCode != nil)
	be.Equal(t, *c.ExitCode, int64(14))
	be.True(t, !c.WantsError())

	c = cases[1]
	be.Equal(t, c.Name, "undeclared")
	be.True(t, c.ExitCode == nil)
	be.Equal(t, c.CompileError, "undeclared")
	be.True(t, c.WantsError())
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			"fence outside case",
			"~~~c-program\nint main() { return 0; }\n~~~\n",
			"c-program fence found outside of a test case",
		},
		{
			"unknown fence",
			"## Test: a\n\n~~~c-program\nx\n~~~\n\n~~~wat\n~~~\n",
			"unknown fence language 'wat' in test 'a'",
		},
		{
			"no program",
			"## Test: a\n\n~~~exit-code\n1\n~~~\n",
			"test 'a' has no c-program fence",
		},
		{
			"no assertion",
			"## Test: a\n\n~~~c-program\nx\n~~~\n",
			"test 'a' has no assertion fences",
		},
		{
			"two programs",
			"## Test: a\n\n~~~c-program\nx\n~~~\n\n~~~c-program\ny\n~~~\n",
			"multiple c-program fences in test 'a'",
		},
		{
			"bad exit code",
			"## Test: a\n\n~~~c-program\nx\n~~~\n\n~~~exit-code\nzero\n~~~\n",
			"invalid exit code in test 'a'",
		},
		{
			"error and output",
			"## Test: a\n\n~~~c-program\nx\n~~~\n\n~~~exit-code\n0\n~~~\n\n~~~compile-error\nboom\n~~~\n",
			"expects a compile error and also checks its output",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Extract([]byte(tc.doc))
			be.Err(t, err, tc.want)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cases_test.md")
	be.Err(t, os.WriteFile(path, []byte(doc), 0o644), nil)

	cases, err := Load(filepath.Join(dir, "*_test.md"))
	be.Err(t, err, nil)
	be.Equal(t, len(cases), 2)
	be.Equal(t, cases[1].File, path)

	bad := filepath.Join(dir, "bad_test.md")
	be.Err(t, os.WriteFile(bad, []byte("## Test: empty\n"), 0o644), nil)
	_, err = Load(filepath.Join(dir, "*_test.md"))
	be.Err(t, err, "bad_test.md")
}
