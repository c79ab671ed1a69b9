package secrets

import (
	"context"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// VaultConfig contains configuration for the HashiCorp Vault adapter
type VaultConfig struct {
	// Vault server address (e.g., "https://vault.example.com:8200")
	Address string

	// Token for token authentication
	Token string

	// KV v2 secrets engine mount path (default: "secret")
	MountPath string

	// Cache TTL
	CacheTTL time.Duration
}

// DefaultVaultConfig returns default configuration for the Vault adapter
func DefaultVaultConfig(address, token string) *VaultConfig {
	return &VaultConfig{
		Address:   address,
		Token:     token,
		MountPath: "secret",
		CacheTTL:  5 * time.Minute,
	}
}

// VaultSecretManager implements ports.SecretManager on Vault KV v2
type VaultSecretManager struct {
	client *vault.Client
	config *VaultConfig
	logger *zap.Logger
	cache  *secretCache
}

// NewVaultSecretManager creates a new HashiCorp Vault adapter
func NewVaultSecretManager(cfg *VaultConfig, logger *zap.Logger) (*VaultSecretManager, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	logger.Info("Vault secret manager initialized",
		zap.String("address", cfg.Address),
		zap.String("mount", cfg.MountPath),
	)

	return &VaultSecretManager{
		client: client,
		config: cfg,
		logger: logger,
		cache:  newSecretCache(cfg.CacheTTL),
	}, nil
}

// GetSecret retrieves the "value" field of a KV v2 secret by path
func (v *VaultSecretManager) GetSecret(ctx context.Context, name string) (string, error) {
	if value, ok := v.cache.get(name); ok {
		return value, nil
	}

	secret, err := v.client.KVv2(v.config.MountPath).Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("get secret %q: %w", name, err)
	}

	raw, ok := secret.Data["value"]
	if !ok {
		return "", fmt.Errorf("secret %q has no value field", name)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("secret %q value is not a string", name)
	}

	v.cache.put(name, value)
	return value, nil
}
