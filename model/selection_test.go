package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelection(t *testing.T) {
	sel := NewSelection(DefaultModel())
	var seen []SelectedModel
	sel.OnChange(func(m SelectedModel) { seen = append(seen, m) })

	next := NextModel(sel.Get())
	sel.Set(next)
	sel.Set(next)

	assert.Equal(t, next, sel.Get())
	assert.Equal(t, []SelectedModel{next}, seen)
	assert.Equal(t, DefaultModel(), NextModel(Catalog[len(Catalog)-1]))
}

func TestLookupModel(t *testing.T) {
	m, ok := LookupModel("llama-3.3-70b-versatile")
	assert.True(t, ok)
	assert.Equal(t, ModelKindRemote, m.Kind)

	_, ok = LookupModel("nope")
	assert.False(t, ok)
}
