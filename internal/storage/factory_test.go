package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoproc/internal/config"
	"videoproc/internal/pkg/errors"
	"videoproc/internal/pkg/logger"
)

func TestNewProviderNone(t *testing.T) {
	sp, err := NewProvider(context.Background(), config.OutputConfig{Provider: "none"}, logger.Nop())
	require.NoError(t, err)
	assert.Nil(t, sp)
	assert.NoError(t, Ping(context.Background(), sp))
}

func TestNewProviderLocalFS(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out")
	sp, err := NewProvider(context.Background(), config.OutputConfig{Provider: "localfs", LocalRoot: root}, logger.Nop())
	require.NoError(t, err)
	require.NotNil(t, sp)
	assert.Equal(t, "localfs", sp.Provider())
	assert.NoError(t, Ping(context.Background(), sp))
}

func TestNewProviderErrors(t *testing.T) {
	_, err := NewProvider(context.Background(), config.OutputConfig{Provider: "localfs"}, logger.Nop())
	assert.True(t, errors.IsValidation(err))

	_, err = NewProvider(context.Background(), config.OutputConfig{Provider: "ftp"}, logger.Nop())
	assert.True(t, errors.IsValidation(err))

	_, err = NewProvider(context.Background(), config.OutputConfig{Provider: "s3"}, logger.Nop())
	assert.True(t, errors.IsValidation(err))
}
