// Command pckstore inspects and converts pck files.
//
//	pckstore keys run.jsonl
//	pckstore get run.jsonl history/phi
//	pckstore slim run.jsonl slim.jsonl.gz
//	pckstore import run.jsonl run.jsonz
//	pckstore convert run.jsonl run.bolt
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/kjk/pckstore/log"
	"github.com/mattn/go-isatty"
)

// Globals are flags available to all commands
type Globals struct {
	Config   string `short:"c" type:"path" help:"Yaml config file."`
	LogLevel string `name:"log-level" help:"Log level: debug, info, warn or error. Overrides config."`
	LogDir   string `name:"log-dir" type:"path" help:"Also log to daily files in this directory. Overrides config."`
}

type CLI struct {
	Globals `embed:""`

	Keys     cmdKeys     `cmd:"" help:"List keys of a pck file or raw files of a directory or archive."`
	Get      cmdGet      `cmd:"" help:"Print values of keys."`
	Slim     cmdSlim     `cmd:"" help:"Write a copy of a .jsonl or .jsonz store without old records."`
	Finalize cmdFinalize `cmd:"" help:"Write a compressed, read-only copy of a store."`
	Import   cmdImport   `cmd:"" help:"Import records of a .jsonl store into a .jsonz store."`
	Convert  cmdConvert  `cmd:"" help:"Convert a pck file to another format."`
}

// env is passed to every command
type env struct {
	conf   *Config
	logger *slog.Logger
	stdout io.Writer
	color  bool
}

// newEnv loads config and creates the logger. Call cleanup when done.
func newEnv(g *Globals, stdout, stderr io.Writer) (e *env, cleanup func(), err error) {
	conf, err := loadConfig(g.Config)
	if err != nil {
		return nil, nil, err
	}
	if g.LogLevel != "" {
		conf.LogLevel = g.LogLevel
	}
	if g.LogDir != "" {
		conf.LogDir = g.LogDir
	}
	level, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	e = &env{conf: conf, stdout: stdout}
	if f, ok := stdout.(*os.File); ok {
		e.color = isatty.IsTerminal(f.Fd())
	}
	cleanup = func() {}
	if conf.LogDir != "" {
		logger, daily := log.NewWithDir(level, conf.LogDir)
		e.logger = logger
		cleanup = func() { _ = daily.Close() }
	} else {
		e.logger = log.New(level, stderr)
	}
	return e, cleanup, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("pckstore"),
		kong.Description("Inspect and convert pck files."),
		kong.Writers(stdout, stderr),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	e, cleanup, err := newEnv(&cli.Globals, stdout, stderr)
	if err != nil {
		return err
	}
	defer cleanup()
	return ctx.Run(e)
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "pckstore: error: %s\n", err)
		os.Exit(1)
	}
}
