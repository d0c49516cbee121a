package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"asset-pool-ledger/config"

	"github.com/hashicorp/vault/api"
)

// ErrCredentialsNotFound is returned when no credentials exist for a provider
var ErrCredentialsNotFound = errors.New("dispatch credentials not found")

// Credentials are what the ledger needs to call a transfer provider
type Credentials struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url,omitempty"`
}

// Client wraps the HashiCorp Vault client. When Vault is disabled it serves
// credentials from an in-memory cache seeded by the caller.
type Client struct {
	client       *api.Client
	config       config.VaultConfig
	mu           sync.RWMutex
	cache        map[string]*Credentials // provider -> credentials
	cacheEnabled bool
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	c := &Client{
		config:       cfg,
		cache:        make(map[string]*Credentials),
		cacheEnabled: true,
	}
	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	c.client = client
	return c, nil
}

// StoreCredentials writes provider credentials to Vault
func (c *Client) StoreCredentials(ctx context.Context, creds Credentials) error {
	if creds.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.config.Enabled {
		secretData := map[string]interface{}{
			"data": map[string]interface{}{
				"provider": creds.Provider,
				"api_key":  creds.APIKey,
				"base_url": creds.BaseURL,
			},
		}
		if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(creds.Provider), secretData); err != nil {
			return fmt.Errorf("failed to store credentials in vault: %w", err)
		}
	}

	c.mu.Lock()
	if c.cacheEnabled || !c.config.Enabled {
		c.cache[creds.Provider] = &creds
	}
	c.mu.Unlock()
	return nil
}

// GetCredentials reads provider credentials, from cache when possible
func (c *Client) GetCredentials(ctx context.Context, provider string) (*Credentials, error) {
	c.mu.RLock()
	cached, ok := c.cache[provider]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if !c.config.Enabled {
		return nil, fmt.Errorf("%w: %s (vault disabled)", ErrCredentialsNotFound, provider)
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(provider))
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, provider)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	creds := &Credentials{
		Provider: provider,
		APIKey:   getString(data, "api_key"),
		BaseURL:  getString(data, "base_url"),
	}
	if creds.APIKey == "" {
		return nil, fmt.Errorf("%w: %s has no api_key", ErrCredentialsNotFound, provider)
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cache[provider] = creds
		c.mu.Unlock()
	}
	return creds, nil
}

// Invalidate drops cached credentials so the next read goes to Vault
func (c *Client) Invalidate(provider string) {
	if !c.config.Enabled {
		return
	}
	c.mu.Lock()
	delete(c.cache, provider)
	c.mu.Unlock()
}

// SetCacheEnabled enables or disables caching
func (c *Client) SetCacheEnabled(enabled bool) {
	c.mu.Lock()
	c.cacheEnabled = enabled
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func (c *Client) secretPath(provider string) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, provider)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// NewMockClient creates a Vault-less client for tests and local runs
func NewMockClient() *Client {
	c, _ := NewClient(config.VaultConfig{Enabled: false})
	return c
}
