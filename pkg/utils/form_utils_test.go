package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFieldsFirstValueWins(t *testing.T) {
	raw := map[string][]string{
		"nombre": {"Ana", "Beatriz"},
		"email":  {"ana@example.com"},
		"empty":  {},
	}

	fields := NormalizeFields(raw)

	assert.Equal(t, "Ana", fields["nombre"])
	assert.Equal(t, "ana@example.com", fields["email"])
	_, ok := fields["empty"]
	assert.False(t, ok, "keys without values must be dropped")
	assert.Len(t, fields, 2)
}

func TestNormalizeFieldsNil(t *testing.T) {
	fields := NormalizeFields(nil)
	require.NotNil(t, fields)
	assert.Empty(t, fields)
}

func TestSafeFilename(t *testing.T) {
	cases := map[string]string{
		"poema.pdf":               "poema.pdf",
		"../../etc/passwd":        "passwd",
		`C:\Users\ana\cuento.doc`: "cuento.doc",
		"":                        "upload",
		"/":                       "upload",
	}
	for in, want := range cases {
		assert.Equal(t, want, SafeFilename(in), "input %q", in)
	}
}

func TestRenameCandidate(t *testing.T) {
	assert.Equal(t, "poema.pdf", RenameCandidate("poema.pdf", 0))
	assert.Equal(t, "poema (1).pdf", RenameCandidate("poema.pdf", 1))
	assert.Equal(t, "archive.tar (3).gz", RenameCandidate("archive.tar.gz", 3))
	assert.Equal(t, "README (2)", RenameCandidate("README", 2))
}

func TestReadAllWithLimit(t *testing.T) {
	data, err := ReadAllWithLimit(strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = ReadAllWithLimit(strings.NewReader("hello!"), 5)
	require.Error(t, err)
	assert.True(t, IsResponseTooLarge(err))

	data, err = ReadAllWithLimit(strings.NewReader("unbounded"), 0)
	require.NoError(t, err)
	assert.Equal(t, "unbounded", string(data))
}
