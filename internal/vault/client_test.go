package vault

import (
	"context"
	"errors"
	"testing"

	"asset-pool-ledger/config"
)

func TestMockClient_StoreAndGet(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()

	if c.IsEnabled() {
		t.Fatal("Expected mock client to be disabled")
	}
	if err := c.StoreCredentials(ctx, Credentials{Provider: "payouts", APIKey: "secret"}); err != nil {
		t.Fatalf("StoreCredentials: %v", err)
	}

	creds, err := c.GetCredentials(ctx, "payouts")
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if creds.APIKey != "secret" {
		t.Errorf("Expected api key secret, got %s", creds.APIKey)
	}

	// Invalidation is a no-op without Vault behind the cache
	c.Invalidate("payouts")
	if _, err := c.GetCredentials(ctx, "payouts"); err != nil {
		t.Errorf("Expected credentials to survive invalidation, got %v", err)
	}
}

func TestMockClient_NotFound(t *testing.T) {
	_, err := NewMockClient().GetCredentials(context.Background(), "missing")
	if !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected ErrCredentialsNotFound, got %v", err)
	}
}

func TestStoreCredentials_RequiresProvider(t *testing.T) {
	if err := NewMockClient().StoreCredentials(context.Background(), Credentials{APIKey: "k"}); err == nil {
		t.Error("Expected error for empty provider")
	}
}

func TestSecretPath(t *testing.T) {
	c, err := NewClient(config.VaultConfig{MountPath: "secret", SecretPath: "ledger/dispatch"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if got := c.secretPath("payouts"); got != "secret/data/ledger/dispatch/payouts" {
		t.Errorf("Unexpected path %s", got)
	}
}

func TestHealth_Disabled(t *testing.T) {
	if err := NewMockClient().Health(context.Background()); err != nil {
		t.Errorf("Expected nil health error when disabled, got %v", err)
	}
}
