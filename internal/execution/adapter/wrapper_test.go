package adapter_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeexec/internal/execution/adapter"
)

func strPtr(s string) *string { return &s }

func TestEmbeddedWrapperQuotesCode(t *testing.T) {
	reg := defaultRegistry(t)
	code := "print(\"\"\"quote \"\"\" and \\ backslash\"\"\")\n</script>"

	for _, id := range []string{"python", "javascript"} {
		a, _ := reg.Get(id)
		program, err := a.Wrap(code, nil, 0)
		if err != nil {
			t.Fatalf("%s wrap: %v", id, err)
		}
		if program.Harness != "" {
			t.Fatalf("%s should not need a harness", id)
		}
		want := `"print(\"\"\"quote \"\"\" and \\ backslash\"\"\")\n</script>"`
		if !strings.Contains(program.Source, want) {
			t.Fatalf("%s source does not embed code literal:\n%s", id, program.Source)
		}
		if strings.Contains(program.Source, code) {
			t.Fatalf("%s source embeds raw code", id)
		}
	}
}

func TestLoaderWrapperKeepsCodeVerbatim(t *testing.T) {
	reg := defaultRegistry(t)
	ts, _ := reg.Get("typescript")
	code := "function solution(x: number): number { return x + 1 }"

	program, err := ts.Wrap(code, strPtr("41"), 0)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if program.Source != code {
		t.Fatalf("typescript source should be written verbatim, got %q", program.Source)
	}
	if !strings.Contains(program.Harness, "process.argv[2]") || !strings.Contains(program.Harness, `const INPUT = "41";`) {
		t.Fatalf("unexpected harness:\n%s", program.Harness)
	}
}

func TestWrappersCarryOutputLimit(t *testing.T) {
	reg := defaultRegistry(t)
	for id, want := range map[string]string{
		"python":     "_OUTPUT_LIMIT = 1048576",
		"javascript": "const OUTPUT_LIMIT = 1048576;",
	} {
		a, _ := reg.Get(id)
		program, err := a.Wrap("", nil, 1<<20)
		if err != nil {
			t.Fatalf("%s wrap: %v", id, err)
		}
		if !strings.Contains(program.Source, want) {
			t.Fatalf("%s source missing %q", id, want)
		}
	}

	ts, _ := reg.Get("typescript")
	program, err := ts.Wrap("", nil, -5)
	if err != nil {
		t.Fatalf("typescript wrap: %v", err)
	}
	if !strings.Contains(program.Harness, "const OUTPUT_LIMIT = 0;") {
		t.Fatalf("negative limit should render as unlimited:\n%s", program.Harness)
	}
}

type scriptResult struct {
	stdout   string
	stderr   string
	exitCode int
}

func runScript(t *testing.T, argv ...string) scriptResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := scriptResult{stdout: stdout.String(), stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.exitCode = exitErr.ExitCode()
	default:
		t.Fatalf("run %v: %v", argv, err)
	}
	return res
}

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not installed", name)
	}
}

// writeProgram lays the wrapped program out the way the service does and
// returns the run argv.
func writeProgram(t *testing.T, a *adapter.Adapter, program adapter.Program) []string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scratch dir")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := a.Layout(dir, "1-test")
	if err := os.WriteFile(files.Source, []byte(program.Source), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if program.Harness != "" {
		if err := os.WriteFile(files.Harness, []byte(program.Harness), 0644); err != nil {
			t.Fatalf("write harness: %v", err)
		}
	}
	return a.RunCommand(files)
}

type harnessCase struct {
	name       string
	code       string
	input      *string
	limit      int64
	wantStdout string
	wantExit   int
	wantStderr string
	// wantOverflow expects more than limit bytes on stdout, then exit 1.
	wantOverflow bool
}

func runHarnessCases(t *testing.T, language string, cases []harnessCase) {
	reg := defaultRegistry(t)
	a, _ := reg.Get(language)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			program, err := a.Wrap(tc.code, tc.input, tc.limit)
			if err != nil {
				t.Fatalf("wrap: %v", err)
			}
			res := runScript(t, writeProgram(t, a, program)...)
			if tc.wantOverflow {
				if res.exitCode != 1 || int64(len(res.stdout)) <= tc.limit {
					t.Fatalf("expected overflow exit: exit=%d stdout=%d bytes", res.exitCode, len(res.stdout))
				}
				return
			}
			if res.exitCode != tc.wantExit {
				t.Fatalf("exit code = %d, want %d (stderr=%q)", res.exitCode, tc.wantExit, res.stderr)
			}
			if tc.wantStderr != "" {
				if !strings.Contains(res.stderr, tc.wantStderr) {
					t.Fatalf("stderr %q does not contain %q", res.stderr, tc.wantStderr)
				}
				return
			}
			if res.stdout != tc.wantStdout {
				t.Fatalf("stdout = %q, want %q (stderr=%q)", res.stdout, tc.wantStdout, res.stderr)
			}
		})
	}
}

func TestPythonHarness(t *testing.T) {
	requireTool(t, "python3")
	runHarnessCases(t, "python", []harnessCase{
		{name: "print", code: "print('hi')", wantStdout: "hi\n"},
		{name: "empty", code: "", wantStdout: ""},
		{name: "exception", code: "x = 1/0", wantStdout: "Error: division by zero\n"},
		{name: "output before exception", code: "print('a')\nraise ValueError('bad')", wantStdout: "a\nError: bad\n"},
		{name: "solution json input", code: "def solution(x):\n    return x * 2", input: strPtr("21"), wantStdout: "42\n"},
		{name: "solution raw input", code: "def solution(s):\n    return s + s", input: strPtr("ab"), wantStdout: "abab\n"},
		{name: "solution without input is not called", code: "def solution(x):\n    return 1", wantStdout: ""},
		{name: "solution none result", code: "def solution(x):\n    print(x)", input: strPtr("[1, 2]"), wantStdout: "[1, 2]\n"},
		{name: "quotes", code: `print("""a\\b "c" '''d'''""")`, wantStdout: "a\\b \"c\" '''d'''\n"},
		{name: "syntax error", code: "def broken(:\n", wantExit: 1, wantStderr: "SyntaxError"},
		{name: "under limit", code: "print('x' * 10)", limit: 64, wantStdout: strings.Repeat("x", 10) + "\n"},
		{name: "print flood stops at limit", code: "while True:\n    print('x' * 100)", limit: 4096, wantOverflow: true},
		{name: "flood survives except", code: "while True:\n    try:\n        print('x' * 100)\n    except BaseException:\n        pass", limit: 4096, wantOverflow: true},
	})
}

func TestJavaScriptHarness(t *testing.T) {
	requireTool(t, "node")
	runHarnessCases(t, "javascript", []harnessCase{
		{name: "infinity", code: "console.log(1/0)", wantStdout: "Infinity\n"},
		{name: "format args", code: "console.log('a', 1, {b: 2})", wantStdout: "a 1 { b: 2 }\n"},
		{name: "throw", code: "throw new Error('boom')", wantStdout: "Error: boom\n"},
		{name: "solution", code: "function solution(arr) { return arr.length }", input: strPtr("[1,2,3]"), wantStdout: "3\n"},
		{name: "solution object", code: "const solution = (n) => ({n})", input: strPtr("7"), wantStdout: "{\"n\":7}\n"},
		{name: "async solution", code: "async function solution(s) { return s.toUpperCase() }", input: strPtr("abc"), wantStdout: "ABC\n"},
		{name: "template literal", code: "const v = `x${1+1}`; console.log(`${v}\\``)", wantStdout: "x2`\n"},
		{name: "syntax error", code: "function (", wantExit: 1, wantStderr: "SyntaxError"},
		{name: "print flood stops at limit", code: "for (;;) console.log('x'.repeat(100))", limit: 4096, wantOverflow: true},
		{name: "flood survives catch", code: "for (;;) { try { console.log('x'.repeat(100)) } catch (e) {} }", limit: 4096, wantOverflow: true},
	})
}

func TestTypeScriptLoaderHarness(t *testing.T) {
	requireTool(t, "node")
	reg := defaultRegistry(t)
	ts, _ := reg.Get("typescript")

	program, err := ts.Wrap("function solution(x: number) { return x + 1 }", strPtr("41"), 0)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	argv := writeProgram(t, ts, program)

	// Stand in for the transpiler output so only node is needed.
	artifact := argv[len(argv)-1]
	if err := os.WriteFile(artifact, []byte("function solution(x) { return x + 1 }\nconsole.log('ran')\n"), 0644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	res := runScript(t, argv...)
	if res.exitCode != 0 || res.stdout != "ran\n42\n" {
		t.Fatalf("unexpected result: %+v", res)
	}
}
