/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"sync"

	"github.com/zalando/go-keyring"
)

// Service/keys for OS keyring.
const (
	keyringService = "InfiniCanvas"
	keyringToken   = "session_token"
	keyringSession = "session_cache"
)

// ErrNoEntry is returned by TokenStore.Get when nothing is stored under the key.
var ErrNoEntry = errors.New("keyring: no entry")

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = &osKeyring{}

// TokenStore is a minimal secret store keyed by service and key.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// SetTokenStore swaps the process-wide store and returns the previous one.
func SetTokenStore(ts TokenStore) TokenStore {
	prev := tokenStore
	tokenStore = ts
	return prev
}

// OSKeyring returns the keychain-backed store.
func OSKeyring() TokenStore { return &osKeyring{} }

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (k *osKeyring) Get(service, key string) (string, error) {
	v, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoEntry
	}
	return v, err
}

func (k *osKeyring) Set(service, key, value string) error {
	return keyring.Set(service, key, value)
}

func (k *osKeyring) Delete(service, key string) error {
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// MemoryTokenStore keeps secrets in process memory.
type MemoryTokenStore struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemoryTokenStore() *MemoryTokenStore { return &MemoryTokenStore{m: map[string]string{}} }

func (s *MemoryTokenStore) Get(service, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[service+"/"+key]
	if !ok {
		return "", ErrNoEntry
	}
	return v, nil
}

func (s *MemoryTokenStore) Set(service, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[service+"/"+key] = value
	return nil
}

func (s *MemoryTokenStore) Delete(service, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, service+"/"+key)
	return nil
}

// SessionCache stores the serialized client session in a TokenStore.
// Encoding and expiry handling belong to the caller.
type SessionCache struct {
	store TokenStore
}

// NewSessionCache wraps ts; nil selects the process-wide store.
func NewSessionCache(ts TokenStore) *SessionCache {
	if ts == nil {
		ts = tokenStore
	}
	return &SessionCache{store: ts}
}

// Load returns the cached blob; ok is false when nothing is cached.
func (c *SessionCache) Load() (blob string, ok bool, err error) {
	v, err := c.store.Get(keyringService, keyringSession)
	if errors.Is(err, ErrNoEntry) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

func (c *SessionCache) Store(blob string) error {
	return c.store.Set(keyringService, keyringSession, blob)
}

func (c *SessionCache) Clear() error {
	return c.store.Delete(keyringService, keyringSession)
}
