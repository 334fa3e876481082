package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Uniqueness(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id, err := Generate("rem")
		require.NoError(t, err)
		assert.False(t, ids[id], "ID should be unique: %s", id)
		ids[id] = true
	}
}

func TestGenerate_Format(t *testing.T) {
	id := MustGenerate("storage")
	assert.True(t, strings.HasPrefix(id, "storage-"))
	assert.Len(t, id, len("storage-")+21)
}
