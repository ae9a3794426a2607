package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeexec/internal/cli/command"
	"codeexec/internal/cli/config"
	httpclient "codeexec/internal/cli/http"
	"codeexec/internal/cli/repl"
	"codeexec/internal/cli/state"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	server := flag.String("server", "", "Override server base URL")
	language := flag.String("language", "", "Override language")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	statePath := flag.String("state", "", "Override session state path")
	pretty := flag.Bool("pretty", false, "Print raw JSON responses")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}

	session, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load session state failed: %v\n", err)
		os.Exit(1)
	}
	baseURL := cfg.BaseURL
	if session.Server != "" {
		baseURL = session.Server
	}
	if *server != "" {
		baseURL = *server
	}
	if session.Language == "" {
		session.Language = cfg.Language
	}
	if *language != "" {
		session.Language = *language
	}

	env := &command.Env{
		Client:    httpclient.New(baseURL, cfg.Timeout),
		State:     &session,
		StatePath: cfg.StatePath,
		Out:       os.Stdout,
		Pretty:    *pretty || *cfg.PrettyJSON,
	}
	commands := command.Registry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	// Arguments run as a single command, e.g. `cli run main.py`.
	if flag.NArg() > 0 {
		err := command.Dispatch(ctx, env, commands, flag.Args())
		if err != nil && !errors.Is(err, command.ErrExit) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	rl, err := repl.NewReadline(cfg.HistoryFile, commands, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init terminal failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	if err := repl.New(env, commands, rl).Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
}
