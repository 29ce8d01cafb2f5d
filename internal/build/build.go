// Package build compiles Coil source files through the compiler core. Each
// file compiles into its own namespace, so multi-file builds parallelize
// without shared mutable state; the optional unit store is the one shared
// sink and carries its own lock. Watch mode recompiles files as changes
// settle.
package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"coil/internal/cache"
	"coil/internal/compiler"
	"coil/internal/exec"
	"coil/internal/reader"
	"coil/internal/runtime"
)

// DefaultParallelism bounds concurrent file compiles when none is
// configured.
const DefaultParallelism = 4

const defaultDebounce = 500 * time.Millisecond

// Result describes one compiled file.
type Result struct {
	Source    string
	Namespace *runtime.Namespace
	Forms     int
	Units     int
	Duration  time.Duration
}

// Builder compiles files with a fixed option set and an optional unit
// store. A Builder is safe for concurrent use once constructed.
type Builder struct {
	log      *zap.Logger
	opts     *compiler.Options
	store    *cache.Store
	emit     io.Writer
	limit    int
	debounce time.Duration
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the builder's logger.
func WithLogger(log *zap.Logger) Option {
	return func(b *Builder) {
		if log != nil {
			b.log = log
		}
	}
}

// WithOptions sets the compiler options used for every file.
func WithOptions(opts *compiler.Options) Option {
	return func(b *Builder) { b.opts = opts }
}

// WithStore collects each file's loadable units into s, replacing that
// file's previous units on rebuild.
func WithStore(s *cache.Store) Option {
	return func(b *Builder) { b.store = s }
}

// WithEmitWriter dumps each assembled module tree to w.
func WithEmitWriter(w io.Writer) Option {
	return func(b *Builder) { b.emit = w }
}

// WithParallelism bounds concurrent file compiles. Non-positive values
// select DefaultParallelism.
func WithParallelism(n int) Option {
	return func(b *Builder) { b.limit = n }
}

// WithDebounce sets the watch-mode settle window.
func WithDebounce(d time.Duration) Option {
	return func(b *Builder) {
		if d > 0 {
			b.debounce = d
		}
	}
}

// New creates a Builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		log:      zap.NewNop(),
		debounce: defaultDebounce,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// NamespaceFor derives the namespace name for a source path: the base name
// with its extension stripped.
func NamespaceFor(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" {
		return base
	}
	return name
}

// File reads, compiles, and executes one source file into a fresh
// namespace. Stale units cached for the file are dropped before the new
// ones collect.
func (b *Builder) File(path string) (*Result, error) {
	start := time.Now()

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	forms, err := reader.ReadAll(path, string(src))
	if err != nil {
		return nil, err
	}

	ns := runtime.NewNamespace(NamespaceFor(path))
	copts := []compiler.ContextOption{compiler.WithLogger(b.log)}
	if b.emit != nil {
		copts = append(copts, compiler.WithEmitWriter(b.emit))
	}
	cctx := compiler.NewContext(path, b.opts, copts...)

	var units int
	var sink compiler.Collector
	if b.store != nil {
		b.store.Drop(path)
		sink = b.store.Collector(path)
	}
	collect := func(u *exec.Unit) {
		units++
		if sink != nil {
			sink(u)
		}
	}

	if err := compiler.CompileModule(cctx, ns, forms, compiler.WithCollector(collect)); err != nil {
		return nil, err
	}

	res := &Result{
		Source:    path,
		Namespace: ns,
		Forms:     len(forms),
		Units:     units,
		Duration:  time.Since(start),
	}
	b.log.Info("compiled file",
		zap.String("file", path),
		zap.String("namespace", ns.Name),
		zap.Int("forms", res.Forms),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// Files compiles paths with bounded parallelism, each into its own
// namespace. Results come back in path order. The first failure cancels
// the remaining compiles and is returned.
func (b *Builder) Files(ctx context.Context, paths []string) ([]*Result, error) {
	results := make([]*Result, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	limit := b.limit
	if limit <= 0 {
		limit = DefaultParallelism
	}
	g.SetLimit(limit)

	for i, path := range paths {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			res, err := b.File(path)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Watch recompiles the given files as they change, until ctx is done.
// Events settle for the configured debounce window before a rebuild;
// onResult receives every rebuild outcome. Only setup failures are
// returned; rebuild failures are reported through onResult and logged.
func (b *Builder) Watch(ctx context.Context, paths []string, onResult func(*Result, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch parent directories: editors replace files on save, and a
	// directory watch survives the replacement.
	watched := make(map[string]string, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", p, err)
		}
		watched[abs] = p
		dirs[filepath.Dir(abs)] = true
	}
	for d := range dirs {
		if err := watcher.Add(d); err != nil {
			return fmt.Errorf("watching %s: %w", d, err)
		}
	}
	b.log.Info("watching for changes",
		zap.Int("files", len(paths)),
		zap.Duration("debounce", b.debounce))

	tick := b.debounce / 5
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	pending := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			b.log.Info("watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			src, relevant := watched[event.Name]
			if !relevant || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			b.log.Debug("change detected", zap.String("file", src), zap.String("op", event.Op.String()))
			pending[src] = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			b.log.Warn("watch error", zap.Error(err))

		case now := <-ticker.C:
			for src, at := range pending {
				if now.Sub(at) < b.debounce {
					continue
				}
				delete(pending, src)
				res, err := b.File(src)
				if err != nil {
					b.log.Warn("rebuild failed", zap.String("file", src), zap.Error(err))
				}
				if onResult != nil {
					onResult(res, err)
				}
			}
		}
	}
}
