package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/graphwalk/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingConfig
	}{
		{"json to stdout", config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}},
		{"text to stderr", config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}},
		{"unknown level falls back", config.LoggingConfig{Level: "shout", Format: "text", Output: "stdout"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(&tt.cfg)
			require.NoError(t, err)
			assert.NotNil(t, log)
		})
	}
}

func TestNewDefault(t *testing.T) {
	assert.NotNil(t, NewDefault())
}

func TestContextualLoggers(t *testing.T) {
	log := Nop()
	assert.NotNil(t, log.WithWalk("abc"))
	assert.NotNil(t, log.WithLevel(3))
	assert.NotNil(t, log.WithType("Article"))
	assert.NotNil(t, log.WithFields(map[string]interface{}{"k": "v"}))
	assert.NoError(t, log.Sync())
}
