package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/tuannm99/novastore"
	"github.com/tuannm99/novastore/internal"
)

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".novactl_history"
	}
	return filepath.Join(home, ".novactl_history")
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "novactl: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	flags := pflag.NewFlagSet("novactl", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "YAML config file")
	command := flags.StringP("exec", "e", "", "run one command and exit")
	history := flags.String("history", defaultHistoryPath(), "history file")
	flags.String("workdir", "", "data directory (storage.workdir)")
	flags.Int("page-size", 0, "page size in bytes (storage.page_size)")
	flags.Int("cache-pages", 0, "page cache size (storage.cache_pages)")
	flags.String("log-level", "", "debug|info|warn|error (log.level)")
	if err := flags.Parse(argv); err != nil {
		return err
	}

	v := internal.NewViper()
	if *configPath != "" {
		v.SetConfigFile(*configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	for key, flag := range map[string]string{
		"storage.workdir":     "workdir",
		"storage.page_size":   "page-size",
		"storage.cache_pages": "cache-pages",
		"log.level":           "log-level",
	} {
		if flags.Changed(flag) {
			if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
				return err
			}
		}
	}
	cfg, err := internal.Decode(v)
	if err != nil {
		return err
	}
	cfg.SetupLogger(os.Stderr)

	db, err := novastore.Open(cfg)
	if err != nil {
		return err
	}
	sh := &shell{db: db, out: os.Stdout}

	if strings.TrimSpace(*command) != "" {
		err := sh.exec(*command)
		if errors.Is(err, errQuit) {
			err = nil
		}
		return multierr.Append(err, db.Close())
	}
	return multierr.Append(repl(sh, *history, cfg.Storage.Workdir), db.Close())
}

func repl(sh *shell, history, workdir string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "novastore> ",
		HistoryFile:     history,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer func() { _ = rl.Close() }()

	fmt.Fprintf(sh.out, "novastore at %s\n", workdir)
	fmt.Fprintln(sh.out, "type help for help")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		err = sh.exec(line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
	}
}
