package store

import (
	"encoding/json"
	"slices"
	"sync"
	"time"
)

const indexSuffix = "__keys"

// Namespace prefixes every key of a shared storage and remembers the keys it
// wrote, so Reset removes exactly this namespace.
type Namespace struct {
	base   Storage
	prefix string
	ttl    time.Duration

	mu sync.Mutex
}

var _ Storage = (*Namespace)(nil)

// NewNamespace wraps base. ttl bounds the lifetime of the key index, 0 keeps it forever.
func NewNamespace(base Storage, prefix string, ttl time.Duration) *Namespace {
	return &Namespace{base: base, prefix: prefix, ttl: ttl}
}

// Prefix returns the key prefix.
func (n *Namespace) Prefix() string {
	return n.prefix
}

// Get returns the value of key.
func (n *Namespace) Get(key string) ([]byte, error) {
	return n.base.Get(n.prefix + key)
}

// Set stores val under key and adds key to the index.
func (n *Namespace) Set(key string, val []byte, exp time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.base.Set(n.prefix+key, val, exp); err != nil {
		return err
	}

	keys, err := n.keys()
	if err != nil {
		return err
	}

	if slices.Contains(keys, key) {
		return nil
	}

	return n.writeIndex(append(keys, key))
}

// Delete removes key.
func (n *Namespace) Delete(key string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.base.Delete(n.prefix + key); err != nil {
		return err
	}

	keys, err := n.keys()
	if err != nil {
		return err
	}

	i := slices.Index(keys, key)
	if i < 0 {
		return nil
	}

	return n.writeIndex(slices.Delete(keys, i, i+1))
}

// Reset removes every key of the namespace and the index.
func (n *Namespace) Reset() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	keys, err := n.keys()
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err = n.base.Delete(n.prefix + key); err != nil {
			return err
		}
	}

	return n.base.Delete(n.prefix + indexSuffix)
}

// Close is a no-op, the base storage is shared.
func (n *Namespace) Close() error {
	return nil
}

// CopyTo writes every live key of n into dst without an expiry.
func (n *Namespace) CopyTo(dst Storage) error {
	keys, err := n.Keys()
	if err != nil {
		return err
	}

	for _, key := range keys {
		val, err := n.Get(key)
		if err != nil {
			return err
		}

		if len(val) == 0 {
			continue
		}

		if err = dst.Set(key, val, 0); err != nil {
			return err
		}
	}

	return nil
}

// Keys returns the keys written through this namespace.
func (n *Namespace) Keys() ([]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.keys()
}

func (n *Namespace) keys() ([]string, error) {
	raw, err := n.base.Get(n.prefix + indexSuffix)
	if err != nil || len(raw) == 0 {
		return nil, err
	}

	var keys []string
	if err = json.Unmarshal(raw, &keys); err != nil {
		return nil, err
	}

	return keys, nil
}

func (n *Namespace) writeIndex(keys []string) error {
	if len(keys) == 0 {
		return n.base.Delete(n.prefix + indexSuffix)
	}

	raw, err := json.Marshal(keys)
	if err != nil {
		return err
	}

	return n.base.Set(n.prefix+indexSuffix, raw, n.ttl)
}
