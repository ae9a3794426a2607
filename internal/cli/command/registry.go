package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"codeexec/internal/execution"
)

// Registry returns all REPL commands keyed by name and alias.
func Registry() map[string]Command {
	commands := []Command{
		{
			Name:        "set",
			Usage:       "set language <id> | set server <url> | set input <value>|none | set timeout <duration>",
			Summary:     "change session settings",
			MinArgs:     1,
			Run:         runSet,
			Subcommands: []string{"language", "server", "input", "timeout"},
		},
		{
			Name:    "load",
			Usage:   "load <file>",
			Summary: "load source code from a file; the language follows the extension",
			MinArgs: 1,
			Run:     runLoad,
		},
		{
			Name:    "run",
			Usage:   "run [file]",
			Summary: "execute the loaded code (re-reading its file)",
			Run:     runRun,
		},
		{
			Name:    "languages",
			Aliases: []string{"langs"},
			Usage:   "languages",
			Summary: "list languages known to the server",
			Run:     runLanguages,
		},
		{
			Name:    "show",
			Usage:   "show",
			Summary: "print the current session",
			Run:     runShow,
		},
		{
			Name:    "exit",
			Aliases: []string{"quit"},
			Usage:   "exit",
			Summary: "leave the REPL",
			Run: func(context.Context, *Env, []string) error {
				return ErrExit
			},
		},
	}

	result := make(map[string]Command, len(commands)+4)
	for _, cmd := range commands {
		result[cmd.Name] = cmd
		for _, alias := range cmd.Aliases {
			result[alias] = cmd
		}
	}
	help := Command{Name: "help", Usage: "help", Summary: "list commands"}
	help.Run = func(_ context.Context, env *Env, _ []string) error {
		for _, name := range Names(result) {
			cmd := result[name]
			env.printf("  %-10s %s", cmd.Name, cmd.Summary)
			env.printf("  %-10s %s", "", cmd.Usage)
		}
		return nil
	}
	result[help.Name] = help
	return result
}

func runSet(_ context.Context, env *Env, args []string) error {
	key := strings.ToLower(args[0])
	value := strings.Join(args[1:], " ")
	if value == "" {
		return fmt.Errorf("usage: set %s <value>", key)
	}
	switch key {
	case "language", "lang":
		env.State.Language = strings.ToLower(value)
		env.printf("language set to %s", env.State.Language)
	case "server", "base":
		env.Client.SetBaseURL(value)
		env.State.Server = env.Client.BaseURL()
		env.printf("server set to %s", env.State.Server)
	case "input":
		if value == "none" {
			env.State.TestInput = nil
			env.printf("test input cleared")
		} else {
			input := value
			env.State.TestInput = &input
			env.printf("test input set to %s", input)
		}
	case "timeout":
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		env.Client.SetTimeout(dur)
		env.printf("timeout set to %s", env.Client.Timeout())
		return nil
	default:
		return fmt.Errorf("unknown setting %q", args[0])
	}
	return env.save()
}

func runLoad(_ context.Context, env *Env, args []string) error {
	code, path, err := ReadFile(args[0])
	if err != nil {
		return err
	}
	env.State.Code = code
	env.State.SourceFile = path
	msg := fmt.Sprintf("loaded %s (%d bytes)", path, len(code))
	if lang, ok := LanguageForFile(path); ok && lang != env.State.Language {
		env.State.Language = lang
		msg += ", language set to " + lang
	}
	env.printf("%s", msg)
	return env.save()
}

func runRun(ctx context.Context, env *Env, args []string) error {
	if len(args) > 0 {
		if err := runLoad(ctx, env, args[:1]); err != nil {
			return err
		}
	} else if env.State.SourceFile != "" {
		code, _, err := ReadFile(env.State.SourceFile)
		if err != nil {
			return err
		}
		env.State.Code = code
	}
	if env.State.SourceFile == "" && env.State.Code == "" {
		return fmt.Errorf("nothing to run, use load <file> first")
	}
	if env.State.Language == "" {
		return fmt.Errorf("no language selected, use set language <id>")
	}

	res, err := env.Client.Execute(ctx, execution.ExecutionRequest{
		Code:      env.State.Code,
		Language:  env.State.Language,
		TestInput: env.State.TestInput,
	})
	if err != nil {
		return err
	}
	if env.Pretty {
		var buf bytes.Buffer
		if json.Indent(&buf, res.Raw, "", "  ") != nil {
			buf.Reset()
			buf.Write(res.Raw)
		}
		env.printf("%s", buf.String())
	} else if res.Failed() {
		env.printf("error: %s", res.Error)
	} else {
		env.printf("%s", res.Output)
	}
	footer := fmt.Sprintf("[%s, HTTP %d, %s", env.State.Language, res.StatusCode, res.Duration.Round(time.Millisecond))
	if res.ErrorCode != "" {
		footer += ", code " + res.ErrorCode
	}
	env.printf("%s]", footer)
	return nil
}

func runLanguages(ctx context.Context, env *Env, _ []string) error {
	langs, err := env.Client.Languages(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tMODE\tSOLUTION\tALIASES")
	for _, lang := range langs {
		solution := "no"
		if lang.TestInvocation {
			solution = "yes"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", lang.ID, lang.Name, lang.Mode, solution, strings.Join(lang.Aliases, ","))
	}
	return tw.Flush()
}

func runShow(_ context.Context, env *Env, _ []string) error {
	input := "<none>"
	if env.State.TestInput != nil {
		input = *env.State.TestInput
	}
	source := env.State.SourceFile
	if source == "" {
		source = "<none>"
	}
	env.printf("server:   %s", env.Client.BaseURL())
	env.printf("timeout:  %s", env.Client.Timeout())
	env.printf("language: %s", env.State.Language)
	env.printf("input:    %s", input)
	env.printf("source:   %s (%d bytes)", source, len(env.State.Code))
	return nil
}
