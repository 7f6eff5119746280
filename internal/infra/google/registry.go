package google

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
)

// Registry caches token sources per credential so that jobs sharing a
// service account also share its cached access token.
type Registry struct {
	mu         sync.Mutex
	httpClient *http.Client
	sources    map[string]*TokenSource
}

func NewRegistry(httpClient *http.Client) *Registry {
	return &Registry{httpClient: httpClient, sources: make(map[string]*TokenSource)}
}

// TokenSource returns the cached source for the given credentials. Inline
// JSON wins over the file path. Both empty yields (nil, nil).
func (r *Registry) TokenSource(credentialsFile, credentialsJSON string) (*TokenSource, error) {
	raw := []byte(strings.TrimSpace(credentialsJSON))
	if len(raw) == 0 {
		path := strings.TrimSpace(credentialsFile)
		if path == "" {
			return nil, nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		raw = data
	}
	if r == nil {
		return nil, errors.New("google: no token registry")
	}
	sum := sha256.Sum256(raw)
	key := hex.EncodeToString(sum[:])

	r.mu.Lock()
	defer r.mu.Unlock()
	if src, ok := r.sources[key]; ok {
		return src, nil
	}
	account, err := ParseServiceAccount(raw)
	if err != nil {
		return nil, err
	}
	src, err := NewTokenSource(account, r.httpClient, CloudPlatformScope)
	if err != nil {
		return nil, err
	}
	r.sources[key] = src
	return src, nil
}

// Len reports how many distinct credentials are cached.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sources)
}
