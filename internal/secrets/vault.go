// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package secrets

import (
	"context"
	"errors"
	"fmt"
	"path"

	vault "github.com/hashicorp/vault/api"

	"github.com/tomtom215/stridesync/internal/config"
	"github.com/tomtom215/stridesync/internal/logging"
)

// APIKeySecret names the secret holding the provider API key.
const APIKeySecret = "intervals_api_key"

// valueField is the KV field a secret's value is stored under.
const valueField = "value"

var (
	// ErrNotFound is returned by Store.Get for a missing or empty secret.
	ErrNotFound = errors.New("secret not found")

	// ErrNoAPIKey is returned when neither the vault nor configuration
	// holds a provider API key.
	ErrNoAPIKey = errors.New("no provider API key found in vault or configuration")
)

// Store reads and writes named string secrets.
type Store interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
}

// Vault is a Store over a KV v2 mount.
type Vault struct {
	kv     *vault.KVv2
	prefix string
}

// NewVault connects to cfg.Address. The client is not contacted until the
// first Get or Set.
func NewVault(cfg config.VaultConfig) (*Vault, error) {
	vc := vault.DefaultConfig()
	if vc.Error != nil {
		return nil, fmt.Errorf("vault environment: %w", vc.Error)
	}
	if cfg.Address != "" {
		vc.Address = cfg.Address
	}
	if cfg.Timeout > 0 {
		vc.Timeout = cfg.Timeout
	}

	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	return &Vault{kv: client.KVv2(cfg.Mount), prefix: cfg.Path}, nil
}

// Get returns the value of the named secret.
func (v *Vault) Get(ctx context.Context, name string) (string, error) {
	secret, err := v.kv.Get(ctx, path.Join(v.prefix, name))
	if errors.Is(err, vault.ErrSecretNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", name, err)
	}
	value, _ := secret.Data[valueField].(string)
	if value == "" {
		return "", fmt.Errorf("%w: %s has no %q field", ErrNotFound, name, valueField)
	}
	return value, nil
}

// Set creates or replaces the named secret.
func (v *Vault) Set(ctx context.Context, name, value string) error {
	if _, err := v.kv.Put(ctx, path.Join(v.prefix, name), map[string]any{valueField: value}); err != nil {
		return fmt.Errorf("write secret %s: %w", name, err)
	}
	return nil
}

// ResolveAPIKey returns the provider API key. A key in store wins. When
// store has none, fallback is returned and written back to store. A store
// that cannot be read is logged and fallback is used without a write-back.
// A nil store means fallback only.
func ResolveAPIKey(ctx context.Context, store Store, fallback string) (string, error) {
	if store == nil {
		if fallback == "" {
			return "", ErrNoAPIKey
		}
		return fallback, nil
	}

	key, err := store.Get(ctx, APIKeySecret)
	if err == nil {
		logging.Ctx(ctx).Debug().Msg("Provider API key loaded from vault")
		return key, nil
	}
	missing := errors.Is(err, ErrNotFound)
	if !missing {
		logging.Ctx(ctx).Warn().Err(err).Msg("Vault read failed, falling back to configured API key")
	}
	if fallback == "" {
		return "", fmt.Errorf("%w: %v", ErrNoAPIKey, err)
	}

	if missing {
		if err := store.Set(ctx, APIKeySecret, fallback); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to store configured API key in vault")
		} else {
			logging.Ctx(ctx).Info().Msg("Configured API key stored in vault")
		}
	}
	return fallback, nil
}
