package main

import (
	"context"
	"fmt"
	"maps"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"coil/internal/build"
	"coil/internal/cache"
	"coil/internal/compiler"
	"coil/internal/runtime"
)

var (
	compileParallel int
	compileEmitTree bool
	compileVerify   bool
)

var compileCmd = &cobra.Command{
	Use:   "compile [files...]",
	Short: "Ahead-of-time compile files and report their loadable units",
	Long: `Compiles each file while caching the loadable unit of every top-level
form, then prints a per-file report. With --verify the cached units are
replayed onto a fresh namespace and the resulting bindings are compared
against the original load.`,
	Args: cobra.MinimumNArgs(1),
	RunE: compileFiles,
}

func init() {
	compileCmd.Flags().IntVar(&compileParallel, "parallel", 0, "Max concurrent file builds (0 = config default)")
	compileCmd.Flags().BoolVar(&compileEmitTree, "emit-tree", false, "Dump assembled module trees to stderr")
	compileCmd.Flags().BoolVar(&compileVerify, "verify", false, "Replay cached units and compare namespace bindings")
}

func compileFiles(cmd *cobra.Command, args []string) error {
	if compileEmitTree {
		cfg.Build.EmitTree = true
	}

	store := cache.NewStore()
	b := newBuilder(store, compileParallel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	results, err := b.Files(ctx, args)
	if err != nil {
		return err
	}

	for _, res := range results {
		fmt.Printf("%s: %d forms, %d units cached\n", res.Source, res.Forms, res.Units)
		if !compileVerify {
			continue
		}
		if err := verifyReplay(res, store); err != nil {
			return err
		}
		fmt.Printf("%s: replay verified\n", res.Source)
	}
	return nil
}

// verifyReplay loads the cached units for a result onto a fresh namespace
// and checks that the bindings match the original load.
func verifyReplay(res *build.Result, store *cache.Store) error {
	cctx := compiler.NewContext(res.Source, cfg.Options(), compiler.WithLogger(logger))
	ns := runtime.NewNamespace(res.Namespace.Name)
	if err := compiler.Replay(cctx, ns, store.Units(res.Source)); err != nil {
		return fmt.Errorf("replaying %s: %w", res.Source, err)
	}
	if !maps.Equal(res.Namespace.Snapshot(), ns.Snapshot()) {
		return fmt.Errorf("replaying %s: bindings diverge from the original load", res.Source)
	}
	return nil
}
