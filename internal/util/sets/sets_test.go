package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := New("a", "b")
	s.Add("c")
	assert.True(t, s.Has("b"))
	s.Delete("b")
	assert.False(t, s.Has("b"))

	c := s.Clone()
	c.Add("z")
	assert.False(t, s.Has("z"))
	assert.Len(t, c, 3)
}
