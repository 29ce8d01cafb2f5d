package compiler

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()

	assert.True(t, o.GenerateAutoInlines())
	assert.True(t, o.InlineFunctions())
	assert.False(t, o.WarnOnShadowedName())
	assert.False(t, o.WarnOnShadowedVar())
	assert.True(t, o.WarnOnUnusedNames())
	assert.True(t, o.WarnOnNonDynamicSet())
	assert.False(t, o.UseVarIndirection())
	assert.True(t, o.WarnOnVarIndirection())
}

func TestNewOptions(t *testing.T) {
	t.Run("NilOverridesYieldDefaults", func(t *testing.T) {
		diff := cmp.Diff(DefaultOptions(), NewOptions(nil), cmp.AllowUnexported(Options{}))
		assert.Empty(t, diff)
	})

	t.Run("ZeroOverridesYieldDefaults", func(t *testing.T) {
		diff := cmp.Diff(DefaultOptions(), NewOptions(&Overrides{}), cmp.AllowUnexported(Options{}))
		assert.Empty(t, diff)
	})

	t.Run("SingleOverrideLeavesTheRestAlone", func(t *testing.T) {
		o := NewOptions(&Overrides{UseVarIndirection: Bool(true)})

		assert.True(t, o.UseVarIndirection())
		assert.True(t, o.GenerateAutoInlines())
		assert.True(t, o.InlineFunctions())
		assert.True(t, o.WarnOnUnusedNames())
		assert.True(t, o.WarnOnNonDynamicSet())
		assert.True(t, o.WarnOnVarIndirection())
		assert.False(t, o.WarnOnShadowedName())
		assert.False(t, o.WarnOnShadowedVar())
	})

	t.Run("ExplicitFalseSticks", func(t *testing.T) {
		o := NewOptions(&Overrides{
			WarnOnUnusedNames: Bool(false),
			InlineFunctions:   Bool(false),
		})

		assert.False(t, o.WarnOnUnusedNames())
		assert.False(t, o.InlineFunctions())
		assert.True(t, o.GenerateAutoInlines())
	})

	t.Run("EveryFieldOverridable", func(t *testing.T) {
		o := NewOptions(&Overrides{
			GenerateAutoInlines:  Bool(false),
			InlineFunctions:      Bool(false),
			WarnOnShadowedName:   Bool(true),
			WarnOnShadowedVar:    Bool(true),
			WarnOnUnusedNames:    Bool(false),
			WarnOnNonDynamicSet:  Bool(false),
			UseVarIndirection:    Bool(true),
			WarnOnVarIndirection: Bool(false),
		})

		assert.False(t, o.GenerateAutoInlines())
		assert.False(t, o.InlineFunctions())
		assert.True(t, o.WarnOnShadowedName())
		assert.True(t, o.WarnOnShadowedVar())
		assert.False(t, o.WarnOnUnusedNames())
		assert.False(t, o.WarnOnNonDynamicSet())
		assert.True(t, o.UseVarIndirection())
		assert.False(t, o.WarnOnVarIndirection())
	})
}

func TestBool(t *testing.T) {
	p := Bool(true)
	require.NotNil(t, p)
	assert.True(t, *p)

	q := Bool(false)
	require.NotNil(t, q)
	assert.False(t, *q)
}
