package service

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultKeySetTTL = time.Hour
	// Пока набор актуален, неизвестный kid обновляет его не чаще этого интервала
	minKeySetRefreshInterval = time.Minute
)

// keyDecoder разбирает тело ответа с публичными ключами провайдера в map kid -> ключ
type keyDecoder func(body []byte) (map[string]*rsa.PublicKey, error)

// remoteKeySet кэширует публичные ключи провайдера до истечения Cache-Control max-age.
// Одновременные обновления схлопываются в один HTTP запрос.
type remoteKeySet struct {
	url        string
	httpClient *http.Client
	decode     keyDecoder

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	expiry      time.Time
	lastFetch   time.Time
	minInterval time.Duration
	now         func() time.Time

	refreshGroup singleflight.Group
}

func newRemoteKeySet(url string, httpClient *http.Client, decode keyDecoder) *remoteKeySet {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &remoteKeySet{
		url:         url,
		httpClient:  httpClient,
		decode:      decode,
		minInterval: minKeySetRefreshInterval,
		now:         time.Now,
	}
}

// Key возвращает ключ по kid, при необходимости обновляя набор
func (k *remoteKeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	now := k.now()
	k.mu.RLock()
	key, ok := k.keys[kid]
	fresh := now.Before(k.expiry)
	throttled := fresh && now.Sub(k.lastFetch) < k.minInterval
	k.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}
	if throttled {
		return nil, fmt.Errorf("signing key %q not found", kid)
	}

	if err := k.refresh(ctx); err != nil {
		return nil, err
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok = k.keys[kid]
	if !ok || key == nil {
		return nil, fmt.Errorf("signing key %q not found", kid)
	}
	return key, nil
}

func (k *remoteKeySet) refresh(ctx context.Context) error {
	ch := k.refreshGroup.DoChan(k.url, func() (interface{}, error) {
		// Запрос не должен отменяться контекстом первого вызывающего: результат делят все ожидающие
		timeout := k.httpClient.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return nil, k.fetch(fetchCtx)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (k *remoteKeySet) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create key set request: %w", err)
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch key set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("key set status=%d body=%s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read key set response: %w", err)
	}
	keys, err := k.decode(body)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("no usable rsa keys in key set response")
	}

	ttl := parseMaxAge(resp.Header.Get("Cache-Control"))
	if ttl <= 0 {
		ttl = defaultKeySetTTL
	}

	now := k.now()
	k.mu.Lock()
	k.keys = keys
	k.expiry = now.Add(ttl)
	k.lastFetch = now
	k.mu.Unlock()
	return nil
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// decodeJWKS разбирает JWKS документ (Google oauth2/v3/certs)
func decodeJWKS(body []byte) (map[string]*rsa.PublicKey, error) {
	var set jwkSet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("failed to decode jwks response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, key := range set.Keys {
		if strings.TrimSpace(key.Kid) == "" || key.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(key)
		if err != nil {
			continue
		}
		keys[key.Kid] = pub
	}
	return keys, nil
}

// decodeX509Certs разбирает документ вида {"kid": "-----BEGIN CERTIFICATE-----..."} (securetoken)
func decodeX509Certs(body []byte) (map[string]*rsa.PublicKey, error) {
	var certs map[string]string
	if err := json.Unmarshal(body, &certs); err != nil {
		return nil, fmt.Errorf("failed to decode certificate response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, certPEM := range certs {
		block, _ := pem.Decode([]byte(certPEM))
		if block == nil {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			continue
		}
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			continue
		}
		keys[kid] = pub
	}
	return keys, nil
}

func parseRSAPublicKey(key jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, err
	}

	n := new(big.Int).SetBytes(nBytes)
	eInt := 0
	for _, b := range eBytes {
		eInt = eInt<<8 + int(b)
	}
	if n.Sign() <= 0 || eInt <= 0 {
		return nil, fmt.Errorf("invalid rsa jwk")
	}

	return &rsa.PublicKey{N: n, E: eInt}, nil
}

func parseMaxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if !strings.HasPrefix(part, "max-age=") {
			continue
		}
		seconds, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(part, "max-age=")) + "s")
		if err != nil {
			return 0
		}
		if seconds < time.Minute {
			return time.Minute
		}
		return seconds
	}
	return 0
}
