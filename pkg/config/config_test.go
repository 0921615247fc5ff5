package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nalgeon/be"

	"github.com/adahad27/compiler/pkg/compiler"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	be.Err(t, cfg.Validate(), nil)
	be.Equal(t, cfg.CompilerOptions(), compiler.DefaultOptions())
	be.Equal(t, cfg.Output.Extension, ".asm")
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[target]
registers = ["rbx", "r12"]

[output]
comments = true

[emulator]
max_steps = 500
`))
	be.Err(t, err, nil)
	be.Equal(t, cfg.Target.Registers, []string{"rbx", "r12"})
	be.Equal(t, cfg.Target.EntryFunction, "main")
	be.Equal(t, cfg.Target.ArgumentRegisters, []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"})
	be.True(t, cfg.Output.Comments)
	be.Equal(t, cfg.Emulator.MaxSteps, 500)

	opts := cfg.CompilerOptions()
	be.Equal(t, opts.Registers, []string{"rbx", "r12"})
	be.True(t, opts.Comments)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		toml string
		want string
	}{
		{"empty pool", "[target]\nregisters = []", "target.registers is empty"},
		{"unknown register", "[target]\nregisters = [\"eax\"]", `unknown register "eax"`},
		{"reserved pool register", "[target]\nregisters = [\"rbx\", \"rcx\"]", `"rcx" is reserved`},
		{"duplicate", "[target]\nregisters = [\"rbx\", \"rbx\"]", `register "rbx" already listed`},
		{"pool overlaps arguments", "[target]\nregisters = [\"rdi\"]", `register "rdi" already listed in target.registers`},
		{"reserved argument register", "[target]\nargument_registers = [\"rax\"]", `"rax" is reserved`},
		{"missing entry", "[target]\nentry_function = \"\"", "entry_function must be set"},
		{"stack size", "[emulator]\nstack_size = 12", "multiple of 8"},
		{"max steps", "[emulator]\nmax_steps = 0", "max_steps must be positive"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.toml))
			be.Err(t, err, ErrInvalid)
			be.Err(t, err, tc.want)
		})
	}
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse([]byte("[target\n"))
	be.Err(t, err, "failed to parse config")
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	be.Err(t, err, nil)
	be.Equal(t, cfg, Default())

	dir := t.TempDir()
	cfg, err = Load(filepath.Join(dir, "missing.toml"))
	be.Err(t, err, nil)
	be.Equal(t, cfg, Default())

	path := filepath.Join(dir, FileName)
	be.Err(t, os.WriteFile(path, []byte("[output]\nextension = \".s\"\n"), 0o644), nil)
	cfg, err = Load(path)
	be.Err(t, err, nil)
	be.Equal(t, cfg.Output.Extension, ".s")

	be.Err(t, os.WriteFile(path, []byte("[emulator]\nstack_size = -8\n"), 0o644), nil)
	_, err = Load(path)
	be.Err(t, err, FileName)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Output.Comments = true
	data, err := cfg.Marshal()
	be.Err(t, err, nil)

	back, err := Parse(data)
	be.Err(t, err, nil)
	be.Equal(t, back, cfg)
}
