// Command ccompiler prints every stage of a compilation: source, tokens,
// syntax tree, scope tree and generated assembly.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/adahad27/compiler/pkg/compiler"
	"github.com/adahad27/compiler/pkg/di"
)

const testSource = `int square(int n) {
    return n * n;
}

int main() {
    int x = 10;
    if (x > 5 && square(x) == 100) {
        x = x + 1;
    }
    return x;
}
`

func main() {
	configPath := flag.String("config", "", "path to a compiler.toml file")
	showTokens := flag.Bool("tokens", true, "print the token stream")
	showAST := flag.Bool("ast", true, "print the syntax tree")
	showScopes := flag.Bool("scopes", true, "print the scope tree")
	flag.Parse()

	src := testSource
	if flag.NArg() > 0 {
		data, err := os.ReadFile(flag.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		src = string(data)
	}

	c, err := di.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	opts := c.Compiler().Options()

	fmt.Printf("Source:\n%s\n", src)

	// Lex
	tokens, err := compiler.Lex(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lex error:", err)
		os.Exit(1)
	}

	if *showTokens {
		fmt.Printf("Tokens (%d)\n", len(tokens))
		for _, tok := range tokens {
			fmt.Println(" ", tok)
		}
		fmt.Println()
	}

	// Parse
	prog, scopes, err := compiler.Parse(tokens, src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parse error:", err)
		os.Exit(1)
	}

	if *showAST {
		fmt.Println("AST")
		fmt.Println(prog)
		fmt.Println()
	}
	if *showScopes {
		fmt.Println("Scopes")
		fmt.Print(scopes)
		fmt.Println()
	}

	// code generation
	asm, err := compiler.Generate(prog, scopes, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "codegen error:", err)
		os.Exit(1)
	}

	fmt.Println("Generated Assembly")
	fmt.Print(asm)

	exit, err := c.Runner().RunAssembly(asm)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("\nexit code %d\n", exit)
}
