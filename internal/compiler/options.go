// Package compiler is the orchestration core of the Coil compiler. It
// sequences the analyzer, generator, optimizer, and host substrate into
// three drivers: single-form evaluation, whole-module ahead-of-time
// compilation, and cached-unit replay. The package owns the compilation
// context, the options set shared by the collaborator sessions, namespace
// bootstrapping, and the phase-tagged error surface.
package compiler

// Options is the immutable named-boolean configuration consumed by the
// analyzer and generator sessions. Construct one with NewOptions; the
// accessor methods satisfy analyzer.Opts and generator.Opts, so a single
// Options value is shared by reference between both sessions of a context.
type Options struct {
	generateAutoInlines  bool
	inlineFunctions      bool
	warnOnShadowedName   bool
	warnOnShadowedVar    bool
	warnOnUnusedNames    bool
	warnOnNonDynamicSet  bool
	useVarIndirection    bool
	warnOnVarIndirection bool
}

// Overrides selects option values explicitly. A nil field means "use the
// documented default"; a non-nil false genuinely disables a true-default
// option, which a plain value-or-default scheme could not express.
type Overrides struct {
	GenerateAutoInlines  *bool `yaml:"generate-auto-inlines"`
	InlineFunctions      *bool `yaml:"inline-functions"`
	WarnOnShadowedName   *bool `yaml:"warn-on-shadowed-name"`
	WarnOnShadowedVar    *bool `yaml:"warn-on-shadowed-var"`
	WarnOnUnusedNames    *bool `yaml:"warn-on-unused-names"`
	WarnOnNonDynamicSet  *bool `yaml:"warn-on-non-dynamic-set"`
	UseVarIndirection    *bool `yaml:"use-var-indirection"`
	WarnOnVarIndirection *bool `yaml:"warn-on-var-indirection"`
}

// Bool is a convenience for building Overrides literals.
func Bool(v bool) *bool { return &v }

// NewOptions applies overrides on top of the documented defaults and
// returns the resulting immutable set. A nil Overrides yields the
// defaults.
func NewOptions(o *Overrides) *Options {
	opts := Options{
		generateAutoInlines:  true,
		inlineFunctions:      true,
		warnOnShadowedName:   false,
		warnOnShadowedVar:    false,
		warnOnUnusedNames:    true,
		warnOnNonDynamicSet:  true,
		useVarIndirection:    false,
		warnOnVarIndirection: true,
	}
	if o == nil {
		return &opts
	}
	coalesce(&opts.generateAutoInlines, o.GenerateAutoInlines)
	coalesce(&opts.inlineFunctions, o.InlineFunctions)
	coalesce(&opts.warnOnShadowedName, o.WarnOnShadowedName)
	coalesce(&opts.warnOnShadowedVar, o.WarnOnShadowedVar)
	coalesce(&opts.warnOnUnusedNames, o.WarnOnUnusedNames)
	coalesce(&opts.warnOnNonDynamicSet, o.WarnOnNonDynamicSet)
	coalesce(&opts.useVarIndirection, o.UseVarIndirection)
	coalesce(&opts.warnOnVarIndirection, o.WarnOnVarIndirection)
	return &opts
}

// DefaultOptions returns the documented defaults with no overrides.
func DefaultOptions() *Options { return NewOptions(nil) }

func coalesce(dst *bool, override *bool) {
	if override != nil {
		*dst = *override
	}
}

func (o *Options) GenerateAutoInlines() bool  { return o.generateAutoInlines }
func (o *Options) InlineFunctions() bool      { return o.inlineFunctions }
func (o *Options) WarnOnShadowedName() bool   { return o.warnOnShadowedName }
func (o *Options) WarnOnShadowedVar() bool    { return o.warnOnShadowedVar }
func (o *Options) WarnOnUnusedNames() bool    { return o.warnOnUnusedNames }
func (o *Options) WarnOnNonDynamicSet() bool  { return o.warnOnNonDynamicSet }
func (o *Options) UseVarIndirection() bool    { return o.useVarIndirection }
func (o *Options) WarnOnVarIndirection() bool { return o.warnOnVarIndirection }
