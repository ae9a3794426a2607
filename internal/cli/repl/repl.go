package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"codeexec/internal/cli/command"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

// LineReader is the part of a readline instance the session needs.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// Session holds REPL state.
type Session struct {
	env      *command.Env
	commands map[string]command.Command
	reader   LineReader
}

func New(env *command.Env, commands map[string]command.Command, reader LineReader) *Session {
	return &Session{env: env, commands: commands, reader: reader}
}

// NewReadline builds a terminal line reader with history and command completion.
func NewReadline(historyFile string, commands map[string]command.Command, out io.Writer) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          "codeexec> ",
		HistoryFile:     historyFile,
		AutoComplete:    completer(commands),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          out,
	})
}

func completer(commands map[string]command.Command) *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands))
	for _, name := range command.Names(commands) {
		cmd := commands[name]
		children := make([]readline.PrefixCompleterInterface, 0, len(cmd.Subcommands))
		for _, sub := range cmd.Subcommands {
			children = append(children, readline.PcItem(sub))
		}
		if name == "load" || name == "run" {
			children = append(children, readline.PcItemDynamic(listFiles))
		}
		items = append(items, readline.PcItem(name, children...))
	}
	return readline.NewPrefixCompleter(items...)
}

// Run reads lines until exit, EOF or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		s.reader.SetPrompt(s.prompt())
		line, err := s.reader.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}

		if err := s.Exec(ctx, line); err != nil {
			if errors.Is(err, command.ErrExit) {
				s.printLine("bye")
				return nil
			}
			s.printLine("error: %v", err)
		}
	}
}

// Exec runs one input line.
func (s *Session) Exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	return command.Dispatch(ctx, s.env, s.commands, tokens)
}

func (s *Session) prompt() string {
	if s.env.State.Language == "" {
		return "codeexec> "
	}
	return fmt.Sprintf("codeexec(%s)> ", s.env.State.Language)
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.env.Out, format+"\n", args...)
}

// listFiles completes paths in the directory named by the last token.
func listFiles(line string) []string {
	fields := strings.Fields(line)
	dir := "."
	if len(fields) > 1 && !strings.HasSuffix(line, " ") {
		dir = filepath.Dir(fields[len(fields)-1])
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if dir != "." {
			name = filepath.Join(dir, name)
		}
		if entry.IsDir() {
			name += string(filepath.Separator)
		}
		names = append(names, name)
	}
	return names
}
