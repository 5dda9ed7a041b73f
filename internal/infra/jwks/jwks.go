// Package jwks verifies JWTs signed by keys published as a JSON Web Key Set.
package jwks

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("jwks: invalid token")
	ErrUnknownKey   = errors.New("jwks: unknown kid")

	errFetch = errors.New("fetch jwks")
)

type keySet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Crv string `json:"crv"`
	N   string `json:"n"`
	E   string `json:"e"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// Verifier checks RS256 and ES256 tokens against a cached key set.
type Verifier struct {
	url      string
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time

	mu         sync.RWMutex
	cache      map[string]crypto.PublicKey
	fetched    time.Time
	httpClient *http.Client
}

type Options struct {
	URL        string
	Issuer     string
	Audience   string
	CacheTTL   time.Duration
	HTTPClient *http.Client
	Now        func() time.Time
}

func NewVerifier(opts Options) *Verifier {
	v := &Verifier{
		url:        opts.URL,
		issuer:     opts.Issuer,
		audience:   opts.Audience,
		ttl:        opts.CacheTTL,
		now:        opts.Now,
		cache:      make(map[string]crypto.PublicKey),
		httpClient: opts.HTTPClient,
	}
	if v.ttl <= 0 {
		v.ttl = time.Hour
	}
	if v.now == nil {
		v.now = time.Now
	}
	if v.httpClient == nil {
		v.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return v
}

// Verify checks the signature and the iss, aud, exp and nbf claims and returns
// the payload. Tokens without exp are rejected.
func (v *Verifier) Verify(ctx context.Context, token string) (map[string]any, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	claims := jwt.MapClaims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.key(ctx, kid)
	})
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, ErrUnknownKey):
		return nil, ErrUnknownKey
	case errors.Is(err, errFetch):
		return nil, err
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
}

// key returns the cached key for kid, refetching the set once on a miss.
func (v *Verifier) key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if err := v.ensureKeys(ctx); err != nil {
		return nil, err
	}
	if key, ok := v.keyFor(kid); ok {
		return key, nil
	}
	if err := v.refresh(ctx); err != nil {
		return nil, err
	}
	if key, ok := v.keyFor(kid); ok {
		return key, nil
	}
	return nil, ErrUnknownKey
}

func (v *Verifier) ensureKeys(ctx context.Context) error {
	v.mu.RLock()
	fresh := v.now().Sub(v.fetched) < v.ttl && len(v.cache) > 0
	v.mu.RUnlock()
	if fresh {
		return nil
	}
	return v.refresh(ctx)
}

func (v *Verifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", errFetch, resp.Status)
	}
	var set keySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode: %w", errFetch, err)
	}
	keys := make(map[string]crypto.PublicKey)
	for _, key := range set.Keys {
		var (
			pub crypto.PublicKey
			err error
		)
		switch key.Kty {
		case "RSA":
			pub, err = rsaKeyFromJWK(key)
		case "EC":
			pub, err = ecKeyFromJWK(key)
		default:
			continue
		}
		if err != nil {
			continue
		}
		keys[key.Kid] = pub
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: no usable keys", errFetch)
	}
	v.mu.Lock()
	v.cache = keys
	v.fetched = v.now()
	v.mu.Unlock()
	return nil
}

func (v *Verifier) keyFor(kid string) (crypto.PublicKey, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	pk, ok := v.cache[kid]
	return pk, ok
}

func rsaKeyFromJWK(j jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, err
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}
	if e == 0 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}

func ecKeyFromJWK(j jwk) (*ecdsa.PublicKey, error) {
	if j.Crv != "P-256" {
		return nil, fmt.Errorf("unsupported curve %q", j.Crv)
	}
	x, err := base64.RawURLEncoding.DecodeString(j.X)
	if err != nil {
		return nil, err
	}
	y, err := base64.RawURLEncoding.DecodeString(j.Y)
	if err != nil {
		return nil, err
	}
	pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: new(big.Int).SetBytes(x), Y: new(big.Int).SetBytes(y)}
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return nil, errors.New("point not on curve")
	}
	return pub, nil
}
