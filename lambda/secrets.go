package lambda

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/byteness/smsotp/gateway"
)

// SecretsLoader loads secrets from a secrets management service.
type SecretsLoader interface {
	// GetSecret retrieves a secret value by its ID or ARN.
	GetSecret(ctx context.Context, secretID string) (string, error)
}

// CacheConfig contains configuration options for the secrets cache.
type CacheConfig struct {
	// TTL is the cache time-to-live. Cached secrets are refreshed after this duration.
	TTL time.Duration
}

// DefaultSecretsCacheTTL is the default TTL for cached secrets.
// Gateway credentials rarely rotate and are read once per cold start.
const DefaultSecretsCacheTTL = 1 * time.Hour

// secretsManagerAPI is the Secrets Manager client operation we use.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

// CachedSecretsLoader implements SecretsLoader with in-process caching.
// It also resolves "secretsmanager:" gateway parameter references.
//
// Cache semantics:
//   - Secrets are cached for the configured TTL (default 1 hour)
//   - Cache is in-process only (not shared across Lambda instances)
//   - Expired secrets are refreshed on next access
type CachedSecretsLoader struct {
	client secretsManagerAPI
	ttl    time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]*cachedSecret
}

// NewCachedSecretsLoader creates a new CachedSecretsLoader with the given AWS config.
//
// Example:
//
//	loader := NewCachedSecretsLoader(awsCfg, WithTTL(10*time.Minute))
//	token, err := loader.Resolve(ctx, "secretsmanager:smsotp/twilio#authToken")
func NewCachedSecretsLoader(awsCfg aws.Config, options ...func(*CacheConfig)) *CachedSecretsLoader {
	return newCachedSecretsLoaderWithClient(secretsmanager.NewFromConfig(awsCfg), options...)
}

// newCachedSecretsLoaderWithClient creates a loader with a custom client (for testing).
func newCachedSecretsLoaderWithClient(client secretsManagerAPI, options ...func(*CacheConfig)) *CachedSecretsLoader {
	cfg := &CacheConfig{
		TTL: DefaultSecretsCacheTTL,
	}
	for _, opt := range options {
		opt(cfg)
	}

	return &CachedSecretsLoader{
		client: client,
		ttl:    cfg.TTL,
		now:    time.Now,
		cache:  make(map[string]*cachedSecret),
	}
}

// WithTTL returns an option that sets the cache TTL.
func WithTTL(ttl time.Duration) func(*CacheConfig) {
	return func(cfg *CacheConfig) {
		cfg.TTL = ttl
	}
}

// GetSecret retrieves a secret value by its ID or ARN.
// Returns the cached value if available and not expired.
// Binary secrets are not supported.
func (l *CachedSecretsLoader) GetSecret(ctx context.Context, secretID string) (string, error) {
	if secretID == "" {
		return "", fmt.Errorf("secret ID is required")
	}

	l.mu.RLock()
	if cached, ok := l.cache[secretID]; ok && l.now().Before(cached.expiresAt) {
		l.mu.RUnlock()
		return cached.value, nil
	}
	l.mu.RUnlock()

	output, err := l.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %q: %w", secretID, err)
	}
	if output.SecretString == nil {
		return "", fmt.Errorf("secret %q is not a string type (binary secrets not supported)", secretID)
	}

	value := *output.SecretString

	l.mu.Lock()
	l.cache[secretID] = &cachedSecret{
		value:     value,
		expiresAt: l.now().Add(l.ttl),
	}
	l.mu.Unlock()

	return value, nil
}

// Resolve implements gateway.SecretResolver.
//
// The reference format is "secretsmanager:<secret-id>[#<json-key>]". With a
// key, the secret string is decoded as a JSON object and the key's string
// value returned, so one secret can hold all credentials of a gateway.
// Keyring references are rejected: there is no OS keyring in Lambda.
func (l *CachedSecretsLoader) Resolve(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, gateway.KeyringPrefix) {
		return "", fmt.Errorf("keyring references are not supported in Lambda, use %s", gateway.SecretsManagerPrefix)
	}
	if !strings.HasPrefix(ref, gateway.SecretsManagerPrefix) {
		return "", fmt.Errorf("unsupported secret reference %q", ref)
	}

	secretID, key, hasKey := strings.Cut(strings.TrimPrefix(ref, gateway.SecretsManagerPrefix), "#")
	value, err := l.GetSecret(ctx, secretID)
	if err != nil {
		return "", err
	}
	if !hasKey {
		return value, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(value), &fields); err != nil {
		return "", fmt.Errorf("secret %q is not a JSON object: %w", secretID, err)
	}
	field, ok := fields[key].(string)
	if !ok {
		return "", fmt.Errorf("secret %q has no string field %q", secretID, key)
	}
	return field, nil
}
