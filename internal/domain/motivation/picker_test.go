package motivation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeededPicker_IsReproducible(t *testing.T) {
	a := NewSeededPicker(42)
	b := NewSeededPicker(42)

	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Pick(), b.Pick())
	}
}

func TestPicker_PickKind(t *testing.T) {
	p := NewSeededPicker(7)

	for i := 0; i < 10; i++ {
		c, ok := p.PickKind(KindQuote)
		assert.True(t, ok)
		assert.Equal(t, KindQuote, c.Kind)
		assert.NotEmpty(t, c.Author)
	}
}

func TestPicker_PickKindMissing(t *testing.T) {
	p := NewSeededPicker(1)
	_, ok := p.PickKind(Kind("joke"))
	assert.False(t, ok)
}

func TestNewPicker_EmptyCatalogueUsesDefault(t *testing.T) {
	p := NewSeededPicker(3)
	assert.Contains(t, DefaultCatalogue(), p.Pick())
}
