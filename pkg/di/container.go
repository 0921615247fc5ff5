// Package di wires configuration, the compiler and the emulator runner
// into one injector shared by the command line tools.
package di

import (
	"fmt"

	"github.com/samber/do"

	"github.com/adahad27/compiler/pkg/asm"
	"github.com/adahad27/compiler/pkg/compiler"
	"github.com/adahad27/compiler/pkg/config"
	"github.com/adahad27/compiler/pkg/cpu"
)

// Container wraps the do.Injector with typed accessors.
type Container struct {
	*do.Injector
}

// NewContainer registers every service. cfg is used as is; pass
// config.Default() when no file was given.
func NewContainer(cfg *config.Config) *Container {
	i := do.New()

	do.ProvideValue(i, cfg)

	do.Provide(i, func(i *do.Injector) (*compiler.Compiler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return compiler.New(cfg.CompilerOptions()), nil
	})

	do.Provide(i, func(i *do.Injector) (*Runner, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return &Runner{
			StackSize: cfg.Emulator.StackSize,
			MaxSteps:  cfg.Emulator.MaxSteps,
		}, nil
	})

	return &Container{Injector: i}
}

// Load builds a container from the configuration file at path.
func Load(path string) (*Container, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return NewContainer(cfg), nil
}

func (c *Container) Config() *config.Config {
	return do.MustInvoke[*config.Config](c.Injector)
}

func (c *Container) Compiler() *compiler.Compiler {
	return do.MustInvoke[*compiler.Compiler](c.Injector)
}

func (c *Container) Runner() *Runner {
	return do.MustInvoke[*Runner](c.Injector)
}

// Shutdown releases the injector's services.
func (c *Container) Shutdown() error {
	return c.Injector.Shutdown()
}

// Runner executes assembly on the emulator.
type Runner struct {
	StackSize int
	MaxSteps  int
}

// RunAssembly assembles code and runs it to completion.
func (r *Runner) RunAssembly(code string) (int64, error) {
	prog, _, err := asm.Assemble(code)
	if err != nil {
		return 0, fmt.Errorf("assembly error: %w", err)
	}
	return r.Run(prog)
}

// Run executes an already assembled image.
func (r *Runner) Run(prog *cpu.Program) (int64, error) {
	exit, err := cpu.Execute(prog, r.StackSize, r.MaxSteps)
	if err != nil {
		return 0, fmt.Errorf("runtime error: %w", err)
	}
	return exit, nil
}
