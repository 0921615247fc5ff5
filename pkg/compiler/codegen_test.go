package compiler

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/adahad27/compiler/pkg/cpu"
)

func generate(t *testing.T, src string, opts Options) string {
	t.Helper()
	prog, scopes := mustParse(t, src)
	out, err := Generate(prog, scopes, opts)
	be.Err(t, err, nil)
	return out
}

// execute compiles src with the default options and runs it on the emulator.
func execute(t *testing.T, src string) int64 {
	t.Helper()
	res, err := Compile(src)
	be.Err(t, err, nil)
	checkLabels(t, res.Assembly)
	exit, err := cpu.Execute(res.Image, 0, 1_000_000)
	be.Err(t, err, nil)
	return exit
}

// checkLabels verifies that every label is defined once and every jump
// target is defined.
func checkLabels(t *testing.T, assembly string) {
	t.Helper()
	defined := map[string]int{}
	var targets []string
	for _, line := range strings.Split(assembly, "\n") {
		line = strings.TrimSpace(line)
		if name, ok := strings.CutSuffix(line, ":"); ok {
			defined[name]++
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 2 && (strings.HasPrefix(fields[0], "j") || fields[0] == "call") {
			targets = append(targets, fields[1])
		}
	}
	for name, n := range defined {
		if n != 1 {
			t.Errorf("label %s defined %d times", name, n)
		}
	}
	for _, target := range targets {
		if defined[target] == 0 {
			t.Errorf("jump to undefined label %s", target)
		}
	}
}

func TestGenerateListing(t *testing.T) {
	got := generate(t, "int main() { return 2 + 3 * 4; }", DefaultOptions())
	want := strings.Join([]string{
		"global _start",
		"_start:",
		"\tcall main",
		"\tmov rdi, rax",
		"\tmov rax, 60",
		"\tsyscall",
		"main:",
		"\tpush rbp",
		"\tmov rbp, rsp",
		"\tpush rbx",
		"\tpush r10",
		"\tmov rbx, 2",
		"\tmov r10, 3",
		"\timul r10, 4",
		"\tadd rbx, r10",
		"\tmov rax, rbx",
		"\tjmp .L0",
		"\tmov rax, 0",
		".L0:",
		"\tpop r10",
		"\tpop rbx",
		"\tmov rsp, rbp",
		"\tpop rbp",
		"\tret",
	}, "\n") + "\n"
	be.Equal(t, got, want)
}

func TestGenerateComments(t *testing.T) {
	opts := DefaultOptions()
	opts.Comments = true
	got := generate(t, "int main() { int x = 4; return x; }", opts)
	be.True(t, strings.Contains(got, "\t; int main(0 params), 8 bytes of locals\n"))
	be.True(t, strings.Contains(got, "\t; int x = 4;\n"))
	be.True(t, strings.Contains(got, "\t; return x;\n"))
}

func TestGenerateFrameLayout(t *testing.T) {
	got := generate(t, `
int main() {
    int a;
    if (true) { int b = 1; a = b; }
    return a;
}`, DefaultOptions())
	be.True(t, strings.Contains(got, "\tsub rsp, 16\n"))
	be.True(t, strings.Contains(got, "\tmov qword [rbp-8], 0\n"))
	be.True(t, strings.Contains(got, "\tmov qword [rbp-16], rbx\n"))
}

func TestGenerateReusesCachedRegister(t *testing.T) {
	src := "int main() { int x = 5; return x + 1; }"
	got := generate(t, src, DefaultOptions())
	be.True(t, strings.Contains(got, "\tmov qword [rbp-8], rbx\n\tadd rbx, 1\n"))
	be.True(t, !strings.Contains(got, "mov rbx, qword [rbp-8]"))
	be.Equal(t, execute(t, src), int64(6))
}

func TestGenerateParameters(t *testing.T) {
	got := generate(t, `
int pick(int a, int b, int c, int d, int e, int f, int g, int h) { return h; }
int main() { return pick(1, 2, 3, 4, 5, 6, 7, 8); }`, DefaultOptions())

	for _, line := range []string{
		"mov qword [rbp-8], rdi",
		"mov qword [rbp-48], r9",
		"mov rcx, qword [rbp+16]",
		"mov qword [rbp-56], rcx",
		"mov rcx, qword [rbp+24]",
		"mov qword [rbp-64], rcx",
		"pop r9\n\tcall pick\n\tadd rsp, 16",
	} {
		if !strings.Contains(got, line) {
			t.Errorf("missing %q in\n%s", line, got)
		}
	}
}

func TestGenerateRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int64
	}{
		{"constant", "int main() { return 42; }", 42},
		{"precedence", "int main() { return 2 + 3 * 4; }", 14},
		{"division", "int main() { return 100 / 7 - 17 / -5; }", 17},
		{"negation", "int main() { int x = 9; return -x + 20; }", 11},
		{"if taken", "int main() { int x = 5; if (x > 3) { return 1; } else { return 0; } }", 1},
		{"if not taken", "int main() { int x = 2; if (x > 3) { return 1; } else { return 0; } }", 0},
		{"elif", `
int classify(int x) {
    if (x < 0) { return 1; } elif (x == 0) { return 2; } else { return 3; }
}
int main() { return classify(-5) * 100 + classify(0) * 10 + classify(7); }`, 123},
		{"while", `
int main() {
    int i = 0;
    int s = 0;
    while (i < 10) { s = s + i; i = i + 1; }
    return s;
}`, 45},
		{"for", `
int main() {
    int s = 0;
    for (int i = 0; i < 5; i = i + 1) { s = s + 2; }
    return s;
}`, 10},
		{"shadowing", `
int main() {
    int x = 1;
    if (true) { int x = 2; x = x + 10; }
    return x;
}`, 1},
		{"initializer reads outer", `
int main() {
    int x = 3;
    if (true) { int x = x + 1; return x; }
    return 0;
}`, 4},
		{"fall off the end", "int main() { int x = 1; }", 0},
		{"recursion", `
int fib(int n) {
    if (n < 2) { return n; }
    return fib(n - 1) + fib(n - 2);
}
int main() { return fib(10); }`, 55},
		{"stack arguments", `
int sum8(int a, int b, int c, int d, int e, int f, int g, int h) {
    return a + b + c + d + e + f + g * 100 + h * 1000;
}
int main() { return sum8(1, 2, 3, 4, 5, 6, 7, 8); }`, 8721},
		{"bool function", `
bool even(int n) { return n / 2 * 2 == n; }
int main() {
    if (even(10) && !even(7)) { return 1; }
    return 0;
}`, 1},
		{"char arithmetic", "int main() { char c = 'a'; int d = c + 1; return d; }", 98},
		{"short circuit and", `
int main() {
    int z = 0;
    bool ok = false && 10 / z > 1;
    if (ok) { return 1; }
    return 2;
}`, 2},
		{"short circuit or", `
int main() {
    int z = 0;
    bool ok = true || 10 / z > 1;
    if (ok) { return 1; }
    return 2;
}`, 1},
		{"bool values", `
int main() {
    bool a = 3 < 4;
    bool b = a == false;
    if (!b && a != b) { return 7; }
    return 8;
}`, 7},
		{"value survives calls", `
int clobber(int n) { int a = n * 2; int b = a + 1; return b; }
int main() {
    int x = 40;
    int y = clobber(3);
    return x + y - 5;
}`, 42},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			be.Equal(t, execute(t, tc.src), tc.want)
		})
	}
}

func TestShortCircuitEvaluatesRightWhenNeeded(t *testing.T) {
	res, err := Compile(`
int main() {
    int z = 0;
    bool ok = true && 10 / z > 1;
    return 0;
}`)
	be.Err(t, err, nil)
	_, err = cpu.Execute(res.Image, 0, 1000)
	be.Err(t, err, cpu.ErrDivideError)
}

func TestGenerateOutOfRegisters(t *testing.T) {
	opts := DefaultOptions()
	opts.Registers = []string{"rbx", "r10"}

	// left-nested chains accumulate into one register
	generate(t, "int main() { return ((1 + 2) + 3) + 4; }", opts)

	prog, scopes := mustParse(t, "int main() { return 1 + (2 + (3 + 4)); }")
	_, err := Generate(prog, scopes, opts)
	be.Err(t, err, ErrOutOfRegisters)
	be.Err(t, err, "function main")

	opts.Registers = nil
	_, err = Generate(prog, scopes, opts)
	be.Err(t, err, ErrOutOfRegisters)
}

func TestGenerateReleasesRegisters(t *testing.T) {
	prog, scopes := mustParse(t, `
bool small(int n) { return n < 10 || n == 100; }
int main() {
    int s = 0;
    for (int i = 0; small(i); i = i + 1) { s = s + i * (i - 1) / 2; }
    return s;
}`)
	cg := newCodeGen(scopes, DefaultOptions())
	for _, fn := range prog.Functions {
		be.Err(t, cg.genFunction(fn), nil)
		be.Equal(t, cg.regs.InUse(), 0)
	}
	allocs, frees := cg.regs.Counts()
	be.Equal(t, allocs, frees)
}

func TestGenerateFrameOrder(t *testing.T) {
	src := `
int main() {
    if (true) { int a = 1; }
    if (false) { int b = 2; }
    return 0;
}`
	prog, scopes := mustParse(t, src)
	stmts := prog.Functions[0].Body.Stmts
	stmts[0], stmts[1] = stmts[1], stmts[0]
	_, err := Generate(prog, scopes, DefaultOptions())
	be.Err(t, err, ErrFrameOrder)

	prog, scopes = mustParse(t, src)
	body := prog.Functions[0].Body
	body.Stmts = body.Stmts[1:]
	_, err = Generate(prog, scopes, DefaultOptions())
	be.Err(t, err, ErrFrameOrder)
}

func TestGenerateMissingEntry(t *testing.T) {
	prog, scopes := mustParse(t, "int helper() { return 1; }")
	_, err := Generate(prog, scopes, DefaultOptions())
	be.Err(t, err, `entry function "main" is not defined`)

	opts := DefaultOptions()
	opts.EntryFunction = "helper"
	opts.EntryLabel = "begin"
	got := generate(t, "int helper() { return 1; }", opts)
	be.True(t, strings.HasPrefix(got, "global begin\nbegin:\n\tcall helper\n"))
}

func TestCompileStages(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"int main() { return 1 $ 2; }", "lex error:"},
		{"int main() { return y; }", "parse error:"},
		{"int f() { return 0; }", "codegen error:"},
	}
	for _, tc := range tests {
		_, err := Compile(tc.src)
		be.Err(t, err, tc.want)
	}

	var trace strings.Builder
	c := New(DefaultOptions())
	c.SetTrace(&trace)
	res, err := c.Compile("int main() { return 3; }")
	be.Err(t, err, nil)
	be.Equal(t, len(res.Tokens), 9)
	be.True(t, strings.Contains(trace.String(), "Generated Assembly\n"))
	be.True(t, strings.Contains(trace.String(), "Scopes\nframe 0\n"))
}
