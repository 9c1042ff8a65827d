// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

/*
Package secrets resolves credentials from HashiCorp Vault.

The provider API key lives in a KV v2 mount under
<mount>/<path>/intervals_api_key, field "value". ResolveAPIKey prefers the
vault copy; when the vault has none it falls back to the configured key and
stores it in the vault for later starts.

Usage Example:

	v, err := secrets.NewVault(cfg.Provider.Vault)
	if err != nil {
	    return err
	}
	key, err := secrets.ResolveAPIKey(ctx, v, cfg.Provider.APIKey)
*/
package secrets
