package compiler

import (
	"io"

	"go.uber.org/zap"

	"coil/internal/analyzer"
	"coil/internal/generator"
	"coil/internal/optimizer"
)

// The options set serves both collaborator sessions through their
// consumer-side interfaces.
var (
	_ analyzer.Opts  = (*Options)(nil)
	_ generator.Opts = (*Options)(nil)
)

// Context bundles everything one compilation unit needs: the source
// identifier, one analyzer session, one generator session, and one
// optimizer. A context is created per file or per REPL session and reused
// across many forms. Contexts are single-writer; distinct contexts are
// independent.
type Context struct {
	file string
	opts *Options
	an   *analyzer.Session
	gen  *generator.Session
	opt  *optimizer.Optimizer

	log  *zap.Logger
	emit io.Writer
}

// ContextOption configures a Context at construction.
type ContextOption func(*Context)

// WithLogger routes session warnings and debug output through log.
func WithLogger(log *zap.Logger) ContextOption {
	return func(c *Context) {
		if log != nil {
			c.log = log
		}
	}
}

// WithEmitWriter enables diagnostic emission: every assembled tree is
// rendered to w before host compilation. Purely informational.
func WithEmitWriter(w io.Writer) ContextOption {
	return func(c *Context) { c.emit = w }
}

// NewContext creates a compilation context for the given source
// identifier. A nil opts means the documented defaults.
func NewContext(file string, opts *Options, copts ...ContextOption) *Context {
	if opts == nil {
		opts = DefaultOptions()
	}
	c := &Context{file: file, opts: opts, log: zap.NewNop()}
	for _, co := range copts {
		co(c)
	}
	c.an = analyzer.NewSession(file, opts, c.log)
	c.gen = generator.NewSession(file, opts, c.log)
	c.opt = optimizer.New()
	return c
}

// File returns the source identifier; it is immutable for the context's
// lifetime and tags every loadable unit the context produces.
func (c *Context) File() string { return c.file }

// Options returns the shared options set.
func (c *Context) Options() *Options { return c.opts }

// Analyzer returns the context's analyzer session.
func (c *Context) Analyzer() *analyzer.Session { return c.an }

// Generator returns the context's generator session.
func (c *Context) Generator() *generator.Session { return c.gen }

// Optimizer returns the context's optimizer.
func (c *Context) Optimizer() *optimizer.Optimizer { return c.opt }
