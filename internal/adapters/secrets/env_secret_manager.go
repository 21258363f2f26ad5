package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/renewly/reminder-service/internal/domain/ports"
)

// envSecretManager implements the SecretManager port against environment
// variables. Intended for development and tests; use AWS Secrets Manager
// or Vault in production.
type envSecretManager struct {
	prefix string
	logger *zap.Logger
}

// NewEnvSecretManager creates a secret manager that resolves secrets from
// environment variables. A secret named "db/password" with prefix "REMINDER"
// resolves to REMINDER_DB_PASSWORD.
func NewEnvSecretManager(prefix string, logger *zap.Logger) ports.SecretManager {
	return &envSecretManager{
		prefix: prefix,
		logger: logger,
	}
}

// GetSecret retrieves a secret from the environment
func (m *envSecretManager) GetSecret(ctx context.Context, name string) (string, error) {
	key := m.envKey(name)

	m.logger.Debug("Reading secret from environment",
		zap.String("name", name),
		zap.String("env_var", key),
	)

	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("secret not found: %s (env var %s)", name, key)
	}
	return value, nil
}

func (m *envSecretManager) envKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(key)
	if m.prefix != "" {
		return m.prefix + "_" + key
	}
	return key
}
