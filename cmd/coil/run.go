package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"coil/internal/build"
	"coil/internal/cache"
)

var (
	runParallel int
	runWatch    bool
)

var runCmd = &cobra.Command{
	Use:   "run [files...]",
	Short: "Compile and execute source files",
	Long: `Compiles each file into its own namespace and executes it form by form.
Files build concurrently up to the parallelism limit. With --watch the
command keeps running and rebuilds a file whenever it changes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFiles,
}

func init() {
	runCmd.Flags().IntVar(&runParallel, "parallel", 0, "Max concurrent file builds (0 = config default)")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Rebuild files as they change")
}

func runFiles(cmd *cobra.Command, args []string) error {
	b := newBuilder(nil, runParallel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	results, err := b.Files(ctx, args)
	if err != nil {
		return err
	}
	for _, res := range results {
		fmt.Printf("%s: %d forms -> %s (%s)\n",
			res.Source, res.Forms, res.Namespace.Name, res.Duration.Round(time.Millisecond))
	}

	if !runWatch {
		return nil
	}
	return b.Watch(ctx, args, func(res *build.Result, err error) {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		fmt.Printf("%s: rebuilt, %d forms (%s)\n",
			res.Source, res.Forms, res.Duration.Round(time.Millisecond))
	})
}

// newBuilder assembles a Builder from the loaded config plus the
// command-line parallelism override.
func newBuilder(store *cache.Store, parallel int) *build.Builder {
	if parallel <= 0 {
		parallel = cfg.Build.Parallelism
	}
	opts := []build.Option{
		build.WithLogger(logger),
		build.WithOptions(cfg.Options()),
		build.WithParallelism(parallel),
		build.WithDebounce(cfg.GetDebounce()),
	}
	if store != nil {
		opts = append(opts, build.WithStore(store))
	}
	if cfg.Build.EmitTree {
		opts = append(opts, build.WithEmitWriter(os.Stderr))
	}
	return build.New(opts...)
}
