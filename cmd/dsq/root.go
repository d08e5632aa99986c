package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/datasetq/datasetq/config"
	"github.com/datasetq/datasetq/engine"
	"github.com/datasetq/datasetq/loader"
	"github.com/datasetq/datasetq/value"
)

// flags holds the command line; fields left at their zero value fall back
// to the config file.
type flags struct {
	input      string
	args       []string
	output     string
	format     string
	lazy       bool
	explain    bool
	configPath string
	timeout    string
	logLevel   string
	noColor    bool
	compact    bool
	overwrite  bool
	maxRows    int
	skipRows   int
	columns    []string
	table      string
}

// app is the state shared by the root command and the REPL.
type app struct {
	flags  flags
	cfg    *config.Config
	logger *slog.Logger
	color  bool
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "dsq '<query>' [files...]",
		Short: "dsq - jq-style queries over JSON, YAML, CSV, Avro, Parquet and SQLite",
		Long: `dsq runs a jq-style pipeline over tree data and tables.

Files are loaded by extension; glob patterns (data/**/*.csv) are read
concurrently and concatenated with a _file column. Without files the query
reads JSON from stdin.

Examples:
  dsq '.users | map(.name)' doc.json
  dsq 'filter(.age > 30) | select(["name", "city"])' users.csv
  dsq 'group_by("city") | aggregate(count(), mean("age"))' users.parquet
  dsq --arg orders=orders.csv 'join($orders, on="id")' users.csv`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args[0], args[1:])
		},
	}

	f := &a.flags
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.input, "input", "i", "", "input format, overriding the file extension (json, jsonl, yaml, csv, avro, parquet, sqlite)")
	pf.StringArrayVar(&f.args, "arg", nil, "bind $name to the contents of a file (name=file)")
	pf.StringVar(&f.format, "format", "", "output format: auto, table, json, jsonl, yaml, csv")
	pf.BoolVar(&f.lazy, "lazy", false, "defer table operations and optimize the plan before running")
	pf.StringVar(&f.configPath, "config", "", "config file (default ~/.config/dsq/config.toml)")
	pf.StringVar(&f.timeout, "timeout", "", "abort a query after this long, e.g. 30s")
	pf.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&f.noColor, "no-color", false, "disable coloured output")
	pf.BoolVarP(&f.compact, "compact", "c", false, "print JSON on one line")
	pf.IntVar(&f.maxRows, "max-rows", 0, "read at most this many rows from tabular inputs")
	pf.IntVar(&f.skipRows, "skip-rows", 0, "skip this many leading rows of tabular inputs")
	pf.StringSliceVar(&f.columns, "columns", nil, "read only these columns")
	pf.StringVar(&f.table, "table", "", "SQLite table when the path has no #table suffix")

	cmd.Flags().StringVarP(&f.output, "output", "o", "", "write the result to a file instead of stdout")
	cmd.Flags().BoolVar(&f.overwrite, "overwrite", false, "replace an existing output file")
	cmd.Flags().BoolVar(&f.explain, "explain", false, "print the execution plan instead of running the query")

	cmd.AddCommand(newReplCmd(a))
	return cmd
}

// setup loads the config and applies flag overrides.
func (a *app) setup(cmd *cobra.Command) error {
	var err error
	if a.flags.configPath != "" {
		a.cfg, err = config.LoadFrom(a.flags.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fl := cmd.Flags()
	if fl.Changed("format") {
		a.cfg.Output.Format = a.flags.format
	}
	if fl.Changed("compact") {
		a.cfg.Output.Compact = a.flags.compact
	}
	if fl.Changed("lazy") {
		a.cfg.Lazy = a.flags.lazy
	}
	if fl.Changed("timeout") {
		a.cfg.Timeout = a.flags.timeout
	}
	if fl.Changed("log-level") {
		a.cfg.Log.Level = a.flags.logLevel
	}
	if a.flags.noColor {
		a.cfg.Output.Color = "never"
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	level, _ := a.cfg.LogLevel()
	a.logger = newLogger(cmd.ErrOrStderr(), level, a.cfg.Log.Format)
	a.color = useColor(a.cfg.Output.Color, cmd.OutOrStdout())
	return nil
}

func (a *app) loadOptions() loader.Options {
	opts := loader.DefaultOptions()
	opts.MaxRows = a.flags.maxRows
	opts.SkipRows = a.flags.skipRows
	opts.Columns = a.flags.columns
	opts.Table = a.flags.table
	opts.Concurrency = a.cfg.Load.Concurrency
	opts.Logger = a.logger
	if a.flags.input != "" {
		// validated in inputFormat
		opts.Format, _ = loader.ParseFormat(a.flags.input)
	}
	return opts
}

func (a *app) inputFormat() (loader.Format, error) {
	if a.flags.input == "" {
		return loader.JSON, nil
	}
	return loader.ParseFormat(a.flags.input)
}

// loadInputs reads every input. With no files stdin is read, or null is
// used when stdin is a terminal.
func (a *app) loadInputs(ctx context.Context, stdin io.Reader, files []string) ([]value.Value, error) {
	format, err := a.inputFormat()
	if err != nil {
		return nil, err
	}
	opts := a.loadOptions()
	if len(files) == 0 {
		if f, ok := stdin.(*os.File); ok && isTerminal(f) {
			return []value.Value{value.Null()}, nil
		}
		v, err := loader.ReadFrom(stdin, format, opts)
		if err != nil {
			return nil, err
		}
		return []value.Value{v}, nil
	}
	inputs := make([]value.Value, 0, len(files))
	for _, file := range files {
		v, err := loader.ReadGlob(ctx, file, opts)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, v)
	}
	return inputs, nil
}

// loadArgs binds each --arg name=file.
func (a *app) loadArgs(ctx context.Context) (map[string]value.Value, error) {
	vars := make(map[string]value.Value, len(a.flags.args))
	opts := a.loadOptions()
	opts.Format = ""
	for _, arg := range a.flags.args {
		name, file, ok := strings.Cut(arg, "=")
		name = strings.TrimPrefix(name, "$")
		if !ok || name == "" || file == "" {
			return nil, fmt.Errorf("--arg %q: expected name=file", arg)
		}
		v, err := loader.ReadGlob(ctx, file, opts)
		if err != nil {
			return nil, fmt.Errorf("--arg %s: %w", name, err)
		}
		vars[name] = v
	}
	return vars, nil
}

func (a *app) compile(query string) (*engine.Pipeline, error) {
	p, err := engine.CompileQuery(query, engine.WithLazy(a.cfg.Lazy))
	if err != nil {
		return nil, err
	}
	a.logger.Debug("compiled query", "stages", p.Len(), "lazy", p.IsLazy())
	return p, nil
}

func (a *app) context() (context.Context, context.CancelFunc) {
	d, _ := a.cfg.TimeoutDuration()
	if d > 0 {
		return context.WithTimeout(context.Background(), d)
	}
	return context.WithCancel(context.Background())
}

func (a *app) run(cmd *cobra.Command, query string, files []string) error {
	ctx, cancel := a.context()
	defer cancel()

	p, err := a.compile(query)
	if err != nil {
		return err
	}
	vars, err := a.loadArgs(ctx)
	if err != nil {
		return err
	}
	inputs, err := a.loadInputs(ctx, cmd.InOrStdin(), files)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if a.flags.explain {
		for _, in := range inputs {
			for i, line := range p.Explain(in, vars) {
				fmt.Fprintf(out, "%d. %s\n", i+1, line)
			}
		}
		return nil
	}

	pr := &printer{w: out, format: a.cfg.Output.Format, color: a.color, compact: a.cfg.Output.Compact}
	for _, in := range inputs {
		result, err := a.execute(ctx, p, in, vars)
		if err != nil {
			return err
		}
		if a.flags.output != "" {
			opts := a.loadOptions()
			opts.Format = ""
			opts.Overwrite = a.flags.overwrite
			if err := loader.Write(a.flags.output, result, opts); err != nil {
				return err
			}
			continue
		}
		if err := pr.print(result); err != nil {
			return err
		}
	}
	return nil
}

type outcome struct {
	v   value.Value
	err error
}

// execute runs p, giving up when ctx ends. A timed-out run is abandoned,
// not stopped.
func (a *app) execute(ctx context.Context, p *engine.Pipeline, in value.Value, vars map[string]value.Value) (value.Value, error) {
	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		v, err := p.ExecuteWith(in, vars)
		done <- outcome{v, err}
	}()
	select {
	case r := <-done:
		a.logger.Debug("executed query", "elapsed", time.Since(start), "ok", r.err == nil)
		return r.v, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return value.Null(), fmt.Errorf("query timed out after %s", time.Since(start).Round(time.Millisecond))
		}
		return value.Null(), ctx.Err()
	}
}
