// Package config loads compiler.toml, the target and emulator settings
// shared by both command line tools.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/pelletier/go-toml/v2"

	"github.com/adahad27/compiler/pkg/compiler"
	"github.com/adahad27/compiler/pkg/cpu"
)

// FileName is the configuration file looked up next to the input.
const FileName = "compiler.toml"

// Config mirrors compiler.toml.
type Config struct {
	Target   Target   `toml:"target"`
	Output   Output   `toml:"output"`
	Emulator Emulator `toml:"emulator"`
}

type Target struct {
	EntryLabel        string   `toml:"entry_label"`
	EntryFunction     string   `toml:"entry_function"`
	Registers         []string `toml:"registers"`
	ArgumentRegisters []string `toml:"argument_registers"`
}

type Output struct {
	Comments  bool   `toml:"comments"`
	Extension string `toml:"extension"`
}

type Emulator struct {
	StackSize int `toml:"stack_size"`
	MaxSteps  int `toml:"max_steps"`
}

var ErrInvalid = errors.New("invalid configuration")

// reserved registers are used implicitly by the generated code and never
// enter the allocation pool.
var reserved = []string{"rax", "rdx", "rcx", "rsp", "rbp"}

var gpr = []string{
	"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	opts := compiler.DefaultOptions()
	return &Config{
		Target: Target{
			EntryLabel:        opts.EntryLabel,
			EntryFunction:     opts.EntryFunction,
			Registers:         opts.Registers,
			ArgumentRegisters: opts.ArgRegisters,
		},
		Output: Output{
			Extension: ".asm",
		},
		Emulator: Emulator{
			StackSize: cpu.DefaultStackSize,
			MaxSteps:  cpu.DefaultMaxSteps,
		},
	}
}

// Load reads path on top of the defaults. An empty path returns the
// defaults; so does a path that does not exist.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML over the defaults and validates the result. Keys the
// file leaves out keep their default values.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the target description can be generated for.
func (c *Config) Validate() error {
	if c.Target.EntryLabel == "" || c.Target.EntryFunction == "" {
		return fmt.Errorf("%w: entry_label and entry_function must be set", ErrInvalid)
	}
	if len(c.Target.Registers) == 0 {
		return fmt.Errorf("%w: target.registers is empty", ErrInvalid)
	}

	seen := make(map[string]string)
	check := func(list []string, field string, forbidden []string) error {
		for _, r := range list {
			if !slices.Contains(gpr, r) {
				return fmt.Errorf("%w: %s: unknown register %q", ErrInvalid, field, r)
			}
			if slices.Contains(forbidden, r) {
				return fmt.Errorf("%w: %s: %q is reserved", ErrInvalid, field, r)
			}
			if prev, dup := seen[r]; dup {
				return fmt.Errorf("%w: %s: register %q already listed in %s", ErrInvalid, field, r, prev)
			}
			seen[r] = field
		}
		return nil
	}
	if err := check(c.Target.Registers, "target.registers", reserved); err != nil {
		return err
	}
	if err := check(c.Target.ArgumentRegisters, "target.argument_registers", []string{"rax", "rsp", "rbp"}); err != nil {
		return err
	}

	if c.Emulator.StackSize <= 0 || c.Emulator.StackSize%8 != 0 {
		return fmt.Errorf("%w: emulator.stack_size must be a positive multiple of 8", ErrInvalid)
	}
	if c.Emulator.MaxSteps <= 0 {
		return fmt.Errorf("%w: emulator.max_steps must be positive", ErrInvalid)
	}
	return nil
}

// CompilerOptions converts the target and output sections.
func (c *Config) CompilerOptions() compiler.Options {
	return compiler.Options{
		EntryLabel:    c.Target.EntryLabel,
		EntryFunction: c.Target.EntryFunction,
		Registers:     slices.Clone(c.Target.Registers),
		ArgRegisters:  slices.Clone(c.Target.ArgumentRegisters),
		Comments:      c.Output.Comments,
	}
}

// Marshal renders c as TOML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
