package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2000, cfg.MaxChunkWords)
	assert.Equal(t, 200, cfg.MinChunkWords)
	assert.Equal(t, 3000, cfg.ChunkLargeDocWords)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 10, cfg.ProviderRequestsPerWindow)
	assert.Equal(t, 60000, cfg.WindowMs)
	assert.Equal(t, 15000, cfg.MinRequestSpacingMs)
	assert.Equal(t, 8081, cfg.ServerPort)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MAX_CHUNK_WORDS", "500")
	t.Setenv("MIN_REQUEST_SPACING_MS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.MaxChunkWords)
	assert.Equal(t, 0, cfg.MinRequestSpacingMs)
}

func TestValidate(t *testing.T) {
	t.Run("missing db host", func(t *testing.T) {
		cfg := &Config{DBUser: "u", DBName: "n", MaxChunkWords: 100, ProviderRequestsPerWindow: 1}
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrMissingRequired)
	})

	t.Run("min chunk larger than max", func(t *testing.T) {
		cfg := &Config{DBHost: "h", DBUser: "u", DBName: "n", MaxChunkWords: 100, MinChunkWords: 200, ProviderRequestsPerWindow: 1}
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrMissingRequired)
	})

	t.Run("zero window quota", func(t *testing.T) {
		cfg := &Config{DBHost: "h", DBUser: "u", DBName: "n", MaxChunkWords: 100}
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrMissingRequired)
	})

	t.Run("valid", func(t *testing.T) {
		cfg := &Config{DBHost: "h", DBUser: "u", DBName: "n", MaxChunkWords: 100, MinChunkWords: 10, ProviderRequestsPerWindow: 5}
		assert.NoError(t, cfg.Validate())
	})
}
