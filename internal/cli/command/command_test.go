package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	httpclient "codeexec/internal/cli/http"
	"codeexec/internal/cli/state"
	"codeexec/internal/execution"
)

type testEnv struct {
	env      *Env
	out      *bytes.Buffer
	requests []execution.ExecutionRequest
}

func newTestEnv(t *testing.T, handler func(req execution.ExecutionRequest) (int, string)) *testEnv {
	t.Helper()
	te := &testEnv{out: &bytes.Buffer{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/languages" {
			_, _ = w.Write([]byte(`{"languages":[{"id":"python","name":"Python","mode":"interpreted","testInvocation":true,"aliases":["py"]},{"id":"java","name":"Java","mode":"unsupported"}]}`))
			return
		}
		var req execution.ExecutionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		te.requests = append(te.requests, req)
		status, body := handler(req)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	te.env = &Env{
		Client:    httpclient.New(srv.URL, time.Second),
		State:     &state.SessionState{Language: "python"},
		StatePath: filepath.Join(t.TempDir(), "state.json"),
		Out:       te.out,
	}
	return te
}

func okHandler(execution.ExecutionRequest) (int, string) {
	return http.StatusOK, `{"output":"hi"}`
}

func writeSource(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func dispatch(t *testing.T, te *testEnv, line ...string) error {
	t.Helper()
	return Dispatch(context.Background(), te.env, Registry(), line)
}

func TestDispatchUnknownAndUsage(t *testing.T) {
	te := newTestEnv(t, okHandler)
	if err := dispatch(t, te, "frobnicate"); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
	if err := dispatch(t, te, "load"); err == nil || !strings.Contains(err.Error(), "usage: load") {
		t.Fatalf("expected usage error, got %v", err)
	}
	if err := dispatch(t, te, "QUIT"); !errors.Is(err, ErrExit) {
		t.Fatalf("expected ErrExit, got %v", err)
	}
	if err := dispatch(t, te); err != nil {
		t.Fatalf("empty line should be ignored: %v", err)
	}
}

func TestSetPersistsState(t *testing.T) {
	te := newTestEnv(t, okHandler)
	steps := [][]string{
		{"set", "language", "JavaScript"},
		{"set", "input", "[1, 2]"},
		{"set", "server", "http://exec.local:9000/"},
	}
	for _, step := range steps {
		if err := dispatch(t, te, step...); err != nil {
			t.Fatalf("%v: %v", step, err)
		}
	}
	saved, err := state.Load(te.env.StatePath)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if saved.Language != "javascript" || saved.TestInput == nil || *saved.TestInput != "[1, 2]" || saved.Server != "http://exec.local:9000" {
		t.Fatalf("unexpected saved state: %+v", saved)
	}

	if err := dispatch(t, te, "set", "input", "none"); err != nil || te.env.State.TestInput != nil {
		t.Fatalf("input not cleared: %v", err)
	}
	if err := dispatch(t, te, "set", "timeout", "soon"); err == nil {
		t.Fatalf("expected duration error")
	}
	if err := dispatch(t, te, "set", "colour", "red"); err == nil {
		t.Fatalf("expected unknown setting error")
	}
}

func TestLoadAndRun(t *testing.T) {
	te := newTestEnv(t, okHandler)
	path := writeSource(t, "main.js", "console.log('hi')")

	if err := dispatch(t, te, "load", path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if te.env.State.Language != "javascript" {
		t.Fatalf("language should follow extension, got %s", te.env.State.Language)
	}

	// Edits after load are picked up by run.
	if err := os.WriteFile(path, []byte("console.log('edited')"), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	te.out.Reset()
	if err := dispatch(t, te, "run"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(te.requests) != 1 || te.requests[0].Code != "console.log('edited')" || te.requests[0].Language != "javascript" {
		t.Fatalf("unexpected requests: %+v", te.requests)
	}
	if !strings.HasPrefix(te.out.String(), "hi\n[javascript, HTTP 200") {
		t.Fatalf("unexpected output: %q", te.out.String())
	}
}

func TestRunPrintsErrors(t *testing.T) {
	te := newTestEnv(t, func(req execution.ExecutionRequest) (int, string) {
		if req.Language == "cobol" {
			return http.StatusBadRequest, `{"error":"Unsupported language: cobol"}`
		}
		return http.StatusOK, `{"error":"Error: division by zero"}`
	})
	path := writeSource(t, "main.py", "1/0")

	if err := dispatch(t, te, "run", path); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(te.out.String(), "error: Error: division by zero") {
		t.Fatalf("unexpected output: %q", te.out.String())
	}

	te.out.Reset()
	te.env.State.SourceFile = ""
	te.env.State.Code = "x"
	if err := dispatch(t, te, "set", "language", "cobol"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := dispatch(t, te, "run"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(te.out.String(), "error: Unsupported language: cobol") || !strings.Contains(te.out.String(), "HTTP 400") {
		t.Fatalf("unexpected output: %q", te.out.String())
	}
}

func TestRunRequiresCode(t *testing.T) {
	te := newTestEnv(t, okHandler)
	if err := dispatch(t, te, "run"); err == nil {
		t.Fatalf("expected error without loaded code")
	}
	if len(te.requests) != 0 {
		t.Fatalf("nothing should be sent")
	}
}

func TestRunPrettyJSON(t *testing.T) {
	te := newTestEnv(t, okHandler)
	te.env.Pretty = true
	te.env.State.Code = "print('hi')"
	if err := dispatch(t, te, "run"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(te.out.String(), "{\n  \"output\": \"hi\"\n}") {
		t.Fatalf("unexpected output: %q", te.out.String())
	}
}

func TestLanguagesAndShow(t *testing.T) {
	te := newTestEnv(t, okHandler)
	if err := dispatch(t, te, "langs"); err != nil {
		t.Fatalf("languages: %v", err)
	}
	out := te.out.String()
	if !strings.Contains(out, "python") || !strings.Contains(out, "unsupported") || !strings.Contains(out, "py") {
		t.Fatalf("unexpected listing: %q", out)
	}

	te.out.Reset()
	if err := dispatch(t, te, "show"); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(te.out.String(), "language: python") || !strings.Contains(te.out.String(), "input:    <none>") {
		t.Fatalf("unexpected show output: %q", te.out.String())
	}
}

func TestHelpListsCommands(t *testing.T) {
	te := newTestEnv(t, okHandler)
	if err := dispatch(t, te, "help"); err != nil {
		t.Fatalf("help: %v", err)
	}
	for _, name := range []string{"set", "load", "run", "languages", "show", "help", "exit"} {
		if !strings.Contains(te.out.String(), "  "+name) {
			t.Fatalf("help misses %s: %q", name, te.out.String())
		}
	}
	if got := strings.Join(Names(Registry()), ","); got != "exit,help,languages,load,run,set,show" {
		t.Fatalf("unexpected names: %s", got)
	}
}

func TestLanguageForFile(t *testing.T) {
	cases := map[string]string{"a.py": "python", "b.TS": "typescript", "c.mjs": "javascript", "d.cc": "cpp"}
	for file, want := range cases {
		if got, ok := LanguageForFile(file); !ok || got != want {
			t.Fatalf("LanguageForFile(%s) = %s, %v", file, got, ok)
		}
	}
	if _, ok := LanguageForFile("Makefile"); ok {
		t.Fatalf("unknown extension must not match")
	}
}
