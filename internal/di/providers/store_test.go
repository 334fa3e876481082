package providers

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackendSelection(t *testing.T) {
	cases := []struct {
		dsn, backend, local string
	}{
		{"data/anishelf.db", "sqlite", "data/anishelf.db"},
		{":memory:", "sqlite", ""},
		{"user:pw@tcp(localhost:3306)/shelf", "mysql", ""},
		{"badger:data/kv", "badger", filepath.Join("data/kv", "x")},
		{"badger::memory:", "badger", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.backend, backendName(tc.dsn), tc.dsn)
		assert.Equal(t, tc.local, localPath(tc.dsn), tc.dsn)
	}
}
