package di

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nalgeon/be"

	"github.com/adahad27/compiler/pkg/config"
	"github.com/adahad27/compiler/pkg/cpu"
)

func TestContainerServices(t *testing.T) {
	c := NewContainer(config.Default())
	defer c.Shutdown()

	be.Equal(t, c.Config(), config.Default())
	be.Equal(t, c.Runner().MaxSteps, cpu.DefaultMaxSteps)

	// services are singletons
	be.True(t, c.Compiler() == c.Compiler())
}

func TestCompileAndRun(t *testing.T) {
	c := NewContainer(config.Default())
	defer c.Shutdown()

	res, err := c.Compiler().Compile("int main() { return 6 * 7; }")
	be.Err(t, err, nil)

	exit, err := c.Runner().Run(res.Image)
	be.Err(t, err, nil)
	be.Equal(t, exit, int64(42))

	exit, err = c.Runner().RunAssembly(res.Assembly)
	be.Err(t, err, nil)
	be.Equal(t, exit, int64(42))
}

func TestRunnerLimits(t *testing.T) {
	cfg := config.Default()
	cfg.Emulator.MaxSteps = 50
	c := NewContainer(cfg)
	defer c.Shutdown()

	res, err := c.Compiler().Compile("int main() { while (true) { } return 0; }")
	be.Err(t, err, nil)
	_, err = c.Runner().Run(res.Image)
	be.Err(t, err, cpu.ErrStepLimit)

	_, err = c.Runner().RunAssembly("main:\n\tret\n")
	be.Err(t, err, "assembly error")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	be.Err(t, os.WriteFile(path, []byte("[target]\nregisters = [\"rbx\"]\n"), 0o644), nil)

	c, err := Load(path)
	be.Err(t, err, nil)
	defer c.Shutdown()
	be.Equal(t, c.Compiler().Options().Registers, []string{"rbx"})

	be.Err(t, os.WriteFile(path, []byte("[target]\nregisters = [\"rsp\"]\n"), 0o644), nil)
	_, err = Load(path)
	be.Err(t, err, config.ErrInvalid)
}
