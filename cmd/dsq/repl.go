package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/datasetq/datasetq/config"
	"github.com/datasetq/datasetq/value"
)

const replHelp = `Enter a query to run it against the loaded input.
  :explain <query>  show the plan for a query
  :lazy             toggle lazy mode
  :help             show this help
  :quit             exit (or Ctrl-D)`

func newReplCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repl [file]",
		Args:  cobra.MaximumNArgs(1),
		Short: "Run queries interactively against loaded input",
		Long: `Load the input once and run queries against it interactively.
History is kept in ~/.config/dsq/history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.repl(cmd, args)
		},
	}
}

func historyPath() string {
	return filepath.Join(filepath.Dir(config.DefaultPath()), "history")
}

func (a *app) repl(cmd *cobra.Command, files []string) error {
	ctx, cancel := a.context()
	defer cancel()

	vars, err := a.loadArgs(ctx)
	if err != nil {
		return err
	}
	input := value.Null()
	if len(files) > 0 {
		inputs, err := a.loadInputs(ctx, nil, files)
		if err != nil {
			return err
		}
		input = inputs[0]
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	hist := historyPath()
	if f, err := os.Open(hist); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if err := os.MkdirAll(filepath.Dir(hist), 0o755); err != nil {
			return
		}
		if f, err := os.Create(hist); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "dsq repl: input is %s. Type :help for commands.\n", input.TypeName())
	for {
		text, err := line.Prompt("dsq> ")
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		line.AppendHistory(text)
		if quit := a.evalLine(out, cmd.ErrOrStderr(), text, input, vars); quit {
			return nil
		}
	}
}

// evalLine handles one REPL line and reports whether the session should end.
// Query errors are printed, not returned.
func (a *app) evalLine(out, errOut io.Writer, text string, input value.Value, vars map[string]value.Value) bool {
	switch {
	case text == ":quit" || text == ":q" || text == "exit":
		return true
	case text == ":help":
		fmt.Fprintln(out, replHelp)
		return false
	case text == ":lazy":
		a.cfg.Lazy = !a.cfg.Lazy
		fmt.Fprintf(out, "lazy mode %v\n", a.cfg.Lazy)
		return false
	case strings.HasPrefix(text, ":explain "):
		p, err := a.compile(strings.TrimPrefix(text, ":explain "))
		if err != nil {
			printError(errOut, err, a.color)
			return false
		}
		for i, step := range p.Explain(input, vars) {
			fmt.Fprintf(out, "%d. %s\n", i+1, step)
		}
		return false
	case strings.HasPrefix(text, ":"):
		printError(errOut, fmt.Errorf("unknown command %s", text), a.color)
		return false
	}

	ctx, cancel := a.context()
	defer cancel()
	p, err := a.compile(text)
	if err == nil {
		var result value.Value
		if result, err = a.execute(ctx, p, input, vars); err == nil {
			pr := &printer{w: out, format: a.cfg.Output.Format, color: a.color, compact: a.cfg.Output.Compact}
			err = pr.print(result)
		}
	}
	if err != nil {
		printError(errOut, err, a.color)
	}
	return false
}
