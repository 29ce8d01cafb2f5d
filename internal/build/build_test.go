package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"coil/internal/cache"
	"coil/internal/compiler"
	"coil/internal/reader"
	"coil/internal/runtime"
)

func writeSource(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func derefNamed(t *testing.T, ns *runtime.Namespace, name string) runtime.Value {
	t.Helper()
	v, ok := ns.Resolve(name)
	require.True(t, ok, "expected %s to be interned", name)
	val, err := v.Deref()
	require.NoError(t, err)
	return val
}

func TestNamespaceFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"fib.coil", "fib"},
		{"examples/fib.coil", "fib"},
		{"/abs/path/app.coil", "app"},
		{"noext", "noext"},
		{"weird.lisp", "weird"},
		{".coil", ".coil"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NamespaceFor(tt.path), "path %q", tt.path)
	}
}

func TestFileCompiles(t *testing.T) {
	store := cache.NewStore()
	b := New(WithStore(store))
	path := writeSource(t, t.TempDir(), "answer.coil", "(def x 21) (def y (* x 2))")

	res, err := b.File(path)
	require.NoError(t, err)

	assert.Equal(t, path, res.Source)
	assert.Equal(t, "answer", res.Namespace.Name)
	assert.Equal(t, 2, res.Forms)
	assert.Equal(t, 2, res.Units)
	assert.Positive(t, res.Duration)
	assert.Equal(t, runtime.Int(42), derefNamed(t, res.Namespace, "y"))
	assert.Equal(t, 2, store.Count(path))
}

func TestFileReportsErrors(t *testing.T) {
	b := New()
	dir := t.TempDir()

	t.Run("MissingFile", func(t *testing.T) {
		_, err := b.File(filepath.Join(dir, "absent.coil"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading")
	})

	t.Run("UnfinishedSource", func(t *testing.T) {
		path := writeSource(t, dir, "open.coil", "(def x")
		_, err := b.File(path)
		assert.ErrorIs(t, err, reader.ErrIncomplete)
	})

	t.Run("CompileFailure", func(t *testing.T) {
		path := writeSource(t, dir, "bad.coil", "(boom)")
		_, err := b.File(path)
		require.Error(t, err)

		var ce *compiler.Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, compiler.PhaseAnalysis, ce.Phase)
		assert.Equal(t, path, ce.File)
	})
}

func TestFileRebuildDropsStaleUnits(t *testing.T) {
	store := cache.NewStore()
	b := New(WithStore(store))
	dir := t.TempDir()
	path := writeSource(t, dir, "m.coil", "(def a 1) (def b 2) (def c 3)")

	_, err := b.File(path)
	require.NoError(t, err)
	require.Equal(t, 3, store.Count(path))

	require.NoError(t, os.WriteFile(path, []byte("(def a 9)"), 0644))
	_, err = b.File(path)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Count(path), "rebuilds replace, never append")
}

func TestFilesParallel(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	var paths []string
	for i := 0; i < 6; i++ {
		src := fmt.Sprintf("(def v %d) (def w (* v 10))", i)
		paths = append(paths, writeSource(t, dir, fmt.Sprintf("m%d.coil", i), src))
	}

	store := cache.NewStore()
	b := New(WithStore(store), WithParallelism(3))
	results, err := b.Files(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, results, 6)

	for i, res := range results {
		require.NotNil(t, res, "result %d missing", i)
		assert.Equal(t, paths[i], res.Source, "results keep path order")
		assert.Equal(t, fmt.Sprintf("m%d", i), res.Namespace.Name)
		assert.Equal(t, runtime.Int(int64(i*10)), derefNamed(t, res.Namespace, "w"))
	}
	assert.Len(t, store.Sources(), 6)
}

func TestFilesFirstFailureAborts(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	paths := []string{
		writeSource(t, dir, "good.coil", "(def a 1)"),
		writeSource(t, dir, "bad.coil", "(undefined-thing)"),
	}

	b := New()
	results, err := b.Files(context.Background(), paths)
	require.Error(t, err)
	assert.Nil(t, results)

	var ce *compiler.Error
	assert.ErrorAs(t, err, &ce)
}

func TestFilesCanceledContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := writeSource(t, dir, "m.coil", "(def a 1)")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := New()
	_, err := b.Files(ctx, []string{path, path, path})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatchRebuilds(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "live.coil", "(def x 1)")

	b := New(WithDebounce(50 * time.Millisecond))
	wctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan *Result, 16)
	done := make(chan error, 1)
	go func() {
		done <- b.Watch(wctx, []string{path}, func(r *Result, err error) {
			if err == nil {
				results <- r
			}
		})
	}()

	// Give the watcher time to register before the first change lands.
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("(def x 2)"), 0644))

	var got *Result
	require.Eventually(t, func() bool {
		select {
		case got = <-results:
			return true
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond, "expected a rebuild after the write")

	assert.Equal(t, runtime.Int(2), derefNamed(t, got.Namespace, "x"))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop on context cancellation")
	}
}

func TestWatchReportsRebuildFailures(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "live.coil", "(def x 1)")

	b := New(WithDebounce(50 * time.Millisecond))
	wctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fails := make(chan error, 16)
	done := make(chan error, 1)
	go func() {
		done <- b.Watch(wctx, []string{path}, func(_ *Result, err error) {
			if err != nil {
				fails <- err
			}
		})
	}()

	time.Sleep(150 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("(nope)"), 0644))

	var got error
	require.Eventually(t, func() bool {
		select {
		case got = <-fails:
			return true
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond, "expected the rebuild failure to surface")

	var ce *compiler.Error
	assert.ErrorAs(t, got, &ce)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop on context cancellation")
	}
}
