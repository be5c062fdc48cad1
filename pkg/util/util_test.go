package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret!", hash)
	assert.True(t, CheckPassword("s3cret!", hash))
	assert.False(t, CheckPassword("wrong", hash))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "Config...", Truncate("Configuração gamer", 9))
	assert.Equal(t, "ção", Truncate("ção!", 3))
	assert.Equal(t, "", Truncate("abc", 0))
}

func TestNormalizePage(t *testing.T) {
	p, s := NormalizePage(0, 0)
	assert.Equal(t, 1, p)
	assert.Equal(t, DefaultPageSize, s)

	p, s = NormalizePage(3, 500)
	assert.Equal(t, 3, p)
	assert.Equal(t, MaxPageSize, s)
}
