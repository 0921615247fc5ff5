package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adahad27/compiler/pkg/compiler"
	"github.com/adahad27/compiler/pkg/config"
	"github.com/adahad27/compiler/pkg/di"
)

func main() {
	inPath := flag.String("in", "", "input source file path")
	outPath := flag.String("out", "", "output assembly file path (default: input with the configured extension)")
	configPath := flag.String("config", "", "path to a "+config.FileName+" file (default: the one next to -in, if any)")
	runProgram := flag.Bool("run", false, "run the generated program on the emulator and print its exit code")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in <file>")
		flag.Usage()
		os.Exit(2)
	}

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = filepath.Join(filepath.Dir(*inPath), config.FileName)
	}
	c, err := di.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	defer c.Shutdown()

	res, output, err := compileFile(c, *inPath, *outPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("compiled %d instructions -> %s\n", len(res.Image.Code), output)

	if !*runProgram {
		return
	}

	exit, err := c.Runner().Run(res.Image)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed for %q: %v\n", *inPath, err)
		os.Exit(1)
	}
	fmt.Printf("run complete (%s): exit code %d\n", *inPath, exit)
}

// compileFile compiles inPath and writes the assembly to outPath, or next to
// the input when outPath is empty. It returns the path written.
func compileFile(c *di.Container, inPath, outPath string) (*compiler.Result, string, error) {
	source, err := os.ReadFile(inPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read input file %q: %w", inPath, err)
	}

	res, err := c.Compiler().Compile(string(source))
	if err != nil {
		return nil, "", fmt.Errorf("compilation failed: %w", err)
	}

	if outPath == "" {
		outPath = defaultOutputPath(inPath, c.Config().Output.Extension)
	}
	if err := os.WriteFile(outPath, []byte(res.Assembly), 0o644); err != nil {
		return nil, "", fmt.Errorf("failed to write assembly file %q: %w", outPath, err)
	}
	return res, outPath, nil
}

func defaultOutputPath(inPath, ext string) string {
	if ext == "" {
		ext = ".asm"
	}
	if old := filepath.Ext(inPath); old != "" {
		return strings.TrimSuffix(inPath, old) + ext
	}
	return inPath + ext
}
