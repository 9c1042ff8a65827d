// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package secrets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/stridesync/internal/config"
)

// fakeKV serves the KV v2 data endpoints of one mount from memory.
type fakeKV struct {
	t     *testing.T
	mount string
	token string

	mu      sync.Mutex
	secrets map[string]map[string]any
	writes  int
}

func (f *fakeKV) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Vault-Token") != f.token {
		http.Error(w, `{"errors":["permission denied"]}`, http.StatusForbidden)
		return
	}
	prefix := "/v1/" + f.mount + "/data/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.Error(w, `{"errors":[]}`, http.StatusNotFound)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, prefix)
	meta := map[string]any{"version": 1, "created_time": "2026-03-01T08:00:00Z", "deletion_time": "", "destroyed": false}

	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		data, ok := f.secrets[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"data": data, "metadata": meta}})
	case http.MethodPut, http.MethodPost:
		var body struct {
			Data map[string]any `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decode write body: %v", err)
			http.Error(w, `{"errors":["bad body"]}`, http.StatusBadRequest)
			return
		}
		f.secrets[name] = body.Data
		f.writes++
		_ = json.NewEncoder(w).Encode(map[string]any{"data": meta})
	default:
		http.Error(w, `{"errors":["unsupported"]}`, http.StatusMethodNotAllowed)
	}
}

func newFakeVault(t *testing.T, secrets map[string]map[string]any) (*fakeKV, *Vault) {
	t.Helper()
	if secrets == nil {
		secrets = map[string]map[string]any{}
	}
	kv := &fakeKV{t: t, mount: "kv", token: "s.test", secrets: secrets}
	srv := httptest.NewServer(kv)
	t.Cleanup(srv.Close)

	v, err := NewVault(config.VaultConfig{
		Enabled: true,
		Address: srv.URL,
		Token:   "s.test",
		Mount:   "kv",
		Path:    "external-data-gateway",
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewVault() error = %v", err)
	}
	return kv, v
}

func TestVaultGetSet(t *testing.T) {
	t.Parallel()

	kv, v := newFakeVault(t, map[string]map[string]any{
		"external-data-gateway/intervals_api_key": {"value": "from-vault"},
		"external-data-gateway/empty":             {"other": "x"},
	})
	ctx := context.Background()

	got, err := v.Get(ctx, APIKeySecret)
	if err != nil || got != "from-vault" {
		t.Fatalf("Get() = %q, %v; want from-vault", got, err)
	}
	if _, err := v.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := v.Get(ctx, "empty"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(empty) error = %v, want ErrNotFound", err)
	}

	if err := v.Set(ctx, "rotated", "new-key"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, err := v.Get(ctx, "rotated"); err != nil || got != "new-key" {
		t.Errorf("Get() after Set = %q, %v", got, err)
	}
	kv.mu.Lock()
	stored := kv.secrets["external-data-gateway/rotated"]["value"]
	kv.mu.Unlock()
	if stored != "new-key" {
		t.Errorf("stored value = %v", stored)
	}
}

func TestVaultWrongToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&fakeKV{t: t, mount: "kv", token: "other", secrets: map[string]map[string]any{}})
	defer srv.Close()
	bad, err := NewVault(config.VaultConfig{Address: srv.URL, Token: "s.test", Mount: "kv", Path: "p", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewVault() error = %v", err)
	}
	_, err = bad.Get(context.Background(), APIKeySecret)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get() with wrong token error = %v, want a read failure", err)
	}
}

func TestResolveAPIKeyWritesBackToVault(t *testing.T) {
	t.Parallel()

	kv, v := newFakeVault(t, nil)
	ctx := context.Background()

	key, err := ResolveAPIKey(ctx, v, "from-env")
	if err != nil || key != "from-env" {
		t.Fatalf("ResolveAPIKey() = %q, %v; want from-env", key, err)
	}

	// The next resolve finds the written-back key even with no fallback.
	key, err = ResolveAPIKey(ctx, v, "")
	if err != nil || key != "from-env" {
		t.Fatalf("second ResolveAPIKey() = %q, %v; want from-env", key, err)
	}
	kv.mu.Lock()
	writes := kv.writes
	kv.mu.Unlock()
	if writes != 1 {
		t.Errorf("vault writes = %d, want 1", writes)
	}
}

// memoryStore is a Store with injectable failures.
type memoryStore struct {
	mu      sync.Mutex
	values  map[string]string
	getErr  error
	setErr  error
	setKeys []string
}

func (m *memoryStore) Get(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.values[name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setKeys = append(m.setKeys, name)
	if m.setErr != nil {
		return m.setErr
	}
	m.values[name] = value
	return nil
}

func TestResolveAPIKey(t *testing.T) {
	t.Parallel()

	unreachable := errors.New("dial tcp 127.0.0.1:8200: connection refused")

	tests := []struct {
		name      string
		store     *memoryStore
		fallback  string
		want      string
		wantErr   error
		wantWrite bool
	}{
		{"vault wins", &memoryStore{values: map[string]string{APIKeySecret: "v"}}, "env", "v", nil, false},
		{"fallback written back", &memoryStore{values: map[string]string{}}, "env", "env", nil, true},
		{"write-back failure still resolves", &memoryStore{values: map[string]string{}, setErr: errors.New("sealed")}, "env", "env", nil, true},
		{"unreachable vault uses fallback", &memoryStore{getErr: unreachable}, "env", "env", nil, false},
		{"nothing anywhere", &memoryStore{values: map[string]string{}}, "", "", ErrNoAPIKey, false},
		{"unreachable and no fallback", &memoryStore{getErr: unreachable}, "", "", ErrNoAPIKey, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ResolveAPIKey(context.Background(), tt.store, tt.fallback)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveAPIKey() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ResolveAPIKey() = %q, %v; want %q", got, err, tt.want)
			}
			if wrote := len(tt.store.setKeys) > 0; wrote != tt.wantWrite {
				t.Errorf("wrote back = %v, want %v", wrote, tt.wantWrite)
			}
		})
	}
}

func TestResolveAPIKeyWithoutVault(t *testing.T) {
	t.Parallel()

	if key, err := ResolveAPIKey(context.Background(), nil, "env"); err != nil || key != "env" {
		t.Errorf("ResolveAPIKey(nil store) = %q, %v", key, err)
	}
	if _, err := ResolveAPIKey(context.Background(), nil, ""); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("ResolveAPIKey(nil store, no key) error = %v, want ErrNoAPIKey", err)
	}
}
