package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnvSecretManagerGetSecret(t *testing.T) {
	t.Setenv("REMINDER_SECRET_DB_PASSWORD", "s3cret")

	m := NewEnvSecretManager("REMINDER_SECRET", zap.NewNop())

	value, err := m.GetSecret(context.Background(), "db/password")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", value)
}

func TestEnvSecretManagerKeyMapping(t *testing.T) {
	t.Setenv("REMINDER_SECRET_SMTP_APP_PASSWORD", "mail-pass")

	m := NewEnvSecretManager("REMINDER_SECRET", zap.NewNop())

	value, err := m.GetSecret(context.Background(), "smtp.app-password")
	require.NoError(t, err)
	assert.Equal(t, "mail-pass", value)
}

func TestEnvSecretManagerMissingSecret(t *testing.T) {
	m := NewEnvSecretManager("REMINDER_SECRET", zap.NewNop())

	_, err := m.GetSecret(context.Background(), "does/not/exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REMINDER_SECRET_DOES_NOT_EXIST")
}

func TestEnvSecretManagerNoPrefix(t *testing.T) {
	t.Setenv("DB_PASSWORD", "bare")

	m := NewEnvSecretManager("", zap.NewNop())

	value, err := m.GetSecret(context.Background(), "db/password")
	require.NoError(t, err)
	assert.Equal(t, "bare", value)
}
