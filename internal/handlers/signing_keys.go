package handlers

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	jwtv4 "github.com/golang-jwt/jwt/v4"
	"github.com/golang-jwt/jwt/v5"
)

const (
	keyRefreshInterval  = 12 * time.Hour
	keyRefreshRateLimit = 5 * time.Minute
	keyRefreshTimeout   = 10 * time.Second
)

// signingKeys caches provider JSON Web Key Sets by URL. A set is fetched on
// first use, refreshed in the background, and refetched when a token names
// an unknown key id.
type signingKeys struct {
	mu   sync.Mutex
	sets map[string]*keyfunc.JWKS
}

func newSigningKeys() *signingKeys {
	return &signingKeys{sets: make(map[string]*keyfunc.JWKS)}
}

func (k *signingKeys) get(jwksURL string) (*keyfunc.JWKS, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if set, ok := k.sets[jwksURL]; ok {
		return set, nil
	}
	set, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   keyRefreshInterval,
		RefreshRateLimit:  keyRefreshRateLimit,
		RefreshTimeout:    keyRefreshTimeout,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Printf("Failed to refresh signing keys from %s: %v", jwksURL, err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signing keys: %w", err)
	}
	k.sets[jwksURL] = set
	return set, nil
}

// lookup resolves the verification key for a token from the set at jwksURL
func (k *signingKeys) lookup(jwksURL string) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if kid, _ := token.Header["kid"].(string); kid == "" {
			return nil, errors.New("missing key id")
		}
		set, err := k.get(jwksURL)
		if err != nil {
			return nil, err
		}
		return set.Keyfunc(&jwtv4.Token{
			Header: token.Header,
			Method: jwtv4.GetSigningMethod(token.Method.Alg()),
		})
	}
}

// Close stops background refresh for every cached set
func (k *signingKeys) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for url, set := range k.sets {
		set.EndBackground()
		delete(k.sets, url)
	}
}
