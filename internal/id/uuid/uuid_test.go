package uuid

import (
	"testing"

	guuid "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsValidAndUnique(t *testing.T) {
	t.Parallel()

	g := New()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := g.NewID()
		require.NoError(t, err)
		_, err = guuid.Parse(id)
		require.NoError(t, err)
		assert.False(t, seen[id], "ids must not repeat")
		seen[id] = true
	}
}
