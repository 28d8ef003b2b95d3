package serve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServeCommand(t *testing.T) {
	cmd := NewServeCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "serve", cmd.Use)
	assert.NotNil(t, cmd.RunE)
	assert.Nil(t, cmd.Run)

	assert.NotNil(t, cmd.Flags().Lookup("config"))
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
}

func TestNewLogger(t *testing.T) {
	log, err := newLogger("warn", false)
	require.NoError(t, err)
	assert.Equal(t, "warn", log.GetLevel().String())

	log, err = newLogger("warn", true)
	require.NoError(t, err)
	assert.Equal(t, "debug", log.GetLevel().String(), "debug flag overrides configured level")

	_, err = newLogger("nonsense", false)
	assert.Error(t, err)
}
