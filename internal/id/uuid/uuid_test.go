package uuid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIDIsUniqueAndWellFormed(t *testing.T) {
	g := NewGenerator()
	a, err := g.NewID()
	require.NoError(t, err)
	require.Len(t, a, 36)

	b, err := g.NewID()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
