package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvSecretManager implements ports.SecretManager on environment variables
// for local development and tests. Secret names are mapped to env vars by
// uppercasing and replacing path separators: "redemption-service/token-public-key"
// becomes REDEMPTION_SERVICE_TOKEN_PUBLIC_KEY.
type EnvSecretManager struct{}

// NewEnvSecretManager creates an env-var backed secret manager
func NewEnvSecretManager() *EnvSecretManager {
	return &EnvSecretManager{}
}

// GetSecret resolves the secret from the environment
func (e *EnvSecretManager) GetSecret(_ context.Context, name string) (string, error) {
	key := strings.ToUpper(name)
	key = strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(key)

	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("secret %q not set (env %s)", name, key)
	}
	return value, nil
}
