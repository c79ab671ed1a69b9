package ports

import "context"

// SecretManager fetches key material and credentials (token verification
// keys, database passwords) from a secrets backend.
type SecretManager interface {
	GetSecret(ctx context.Context, name string) (string, error)
}
