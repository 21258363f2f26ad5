package ports

import "context"

// SecretManager retrieves secrets (database password, SMTP credentials)
// from a configured backend
type SecretManager interface {
	GetSecret(ctx context.Context, name string) (string, error)
}
