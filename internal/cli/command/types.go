package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	httpclient "codeexec/internal/cli/http"
	"codeexec/internal/cli/state"
)

// ErrExit asks the REPL to stop.
var ErrExit = errors.New("exit")

// Env is the session a command operates on.
type Env struct {
	Client    *httpclient.Client
	State     *state.SessionState
	StatePath string
	Out       io.Writer
	Pretty    bool
}

func (e *Env) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(e.Out, format+"\n", args...)
}

func (e *Env) save() error {
	return state.Save(e.StatePath, *e.State)
}

// Handler runs one command. args excludes the command name.
type Handler func(ctx context.Context, env *Env, args []string) error

// Command defines a REPL command.
type Command struct {
	Name    string
	Aliases []string
	Usage   string
	Summary string
	MinArgs int
	Run     Handler
	// Subcommands feed completion only.
	Subcommands []string
}

// Dispatch runs the command named by tokens[0].
func Dispatch(ctx context.Context, env *Env, commands map[string]Command, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	cmd, ok := commands[strings.ToLower(tokens[0])]
	if !ok {
		return fmt.Errorf("unknown command %q, type help", tokens[0])
	}
	args := tokens[1:]
	if len(args) < cmd.MinArgs {
		return fmt.Errorf("usage: %s", cmd.Usage)
	}
	return cmd.Run(ctx, env, args)
}

// Names returns the primary command names in order.
func Names(commands map[string]Command) []string {
	seen := make(map[string]bool, len(commands))
	names := make([]string, 0, len(commands))
	for _, cmd := range commands {
		if !seen[cmd.Name] {
			seen[cmd.Name] = true
			names = append(names, cmd.Name)
		}
	}
	sort.Strings(names)
	return names
}

// ReadFile loads a source file, expanding a leading ~.
func ReadFile(path string) (string, string, error) {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, rest)
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("resolve path failed: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", "", fmt.Errorf("read file failed: %w", err)
	}
	return string(data), abs, nil
}

var languageByExt = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".ts":   "typescript",
	".c":    "c",
	".cpp":  "cpp",
	".cc":   "cpp",
	".java": "java",
	".go":   "go",
	".rs":   "rust",
	".cs":   "csharp",
}

// LanguageForFile guesses a language id from a file extension.
func LanguageForFile(path string) (string, bool) {
	lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}
