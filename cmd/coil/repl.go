package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"coil/internal/compiler"
	"coil/internal/reader"
	"coil/internal/runtime"
)

const (
	promptMain = "coil> "
	promptCont = "....> "

	replBanner = "Coil REPL - Ctrl+C clears the line, Ctrl+D exits."
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive session",
	Long: `Starts a line-edited REPL against a fresh user namespace. Input spanning
multiple lines is accepted until the open form closes. Definitions persist
for the lifetime of the session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runREPL()
	},
}

func runREPL() error {
	fmt.Println(replBanner)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	histPath := cfg.REPL.HistoryFile
	if histPath != "" {
		if f, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
	}

	copts := []compiler.ContextOption{compiler.WithLogger(logger)}
	if cfg.Build.EmitTree {
		copts = append(copts, compiler.WithEmitWriter(os.Stderr))
	}
	ctx := compiler.NewContext("repl", cfg.Options(), copts...)
	ns := runtime.NewNamespace("user")

	var evalOpts []compiler.Option
	if cfg.REPL.WrapperBase != "" {
		evalOpts = append(evalOpts, compiler.WithWrapperBase(cfg.REPL.WrapperBase))
	}

	for {
		src, ok := readInput(ln)
		if !ok {
			fmt.Println()
			break
		}
		if strings.TrimSpace(src) == "" {
			continue
		}

		forms, err := reader.ReadAll("repl", src)
		if err != nil {
			fmt.Println(err)
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))

		for _, form := range forms {
			val, err := compiler.EvalForm(ctx, ns, form, evalOpts...)
			if err != nil {
				fmt.Println(err)
				break
			}
			if val != compiler.NoValue {
				fmt.Println(val.String())
			}
		}
	}

	if histPath != "" {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}
	return nil
}

// readInput accumulates lines until the reader accepts the buffer as
// complete input. The second return is false when the session should end.
func readInput(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}

		line, err := ln.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				// Ctrl+C discards whatever was typed so far.
				return "", true
			}
			// io.EOF or a dead terminal ends the session.
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if _, err := reader.ReadAll("repl", src); errors.Is(err, reader.ErrIncomplete) {
			continue
		}
		return src, true
	}
}
