package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// credential buckets
	_ "gocloud.dev/blob/memblob"  // mem:// credential buckets
	"gocloud.dev/secrets"
	_ "gocloud.dev/secrets/localsecrets" // base64key:// keepers
)

// Provider supplies the current credentials.
type Provider interface {
	Credentials(ctx context.Context) (*Credentials, error)
	Close() error
}

// StaticProvider returns fixed credentials. Intended for tests and the
// embedded development server.
type StaticProvider struct {
	creds *Credentials
}

// NewStaticProvider wraps creds.
func NewStaticProvider(creds *Credentials) *StaticProvider {
	return &StaticProvider{creds: creds}
}

// Credentials returns the wrapped credentials unless they have expired.
func (p *StaticProvider) Credentials(context.Context) (*Credentials, error) {
	if p.creds.IsExpired() {
		return nil, ErrCredentialsExpired
	}
	return p.creds, nil
}

// Close is a no-op.
func (p *StaticProvider) Close() error { return nil }

// SealedProvider reads sealed credentials from a bucket and caches the
// decrypted value for CacheTTL.
type SealedProvider struct {
	keeper   *secrets.Keeper
	bucket   *blob.Bucket
	key      string
	cacheTTL time.Duration
	owned    bool

	mu          sync.Mutex
	cached      *Credentials
	cacheExpiry time.Time
	closed      bool
}

// SealedOption configures a SealedProvider.
type SealedOption func(*SealedProvider)

// WithObjectKey sets the bucket key. Default: DefaultObjectKey.
func WithObjectKey(key string) SealedOption {
	return func(p *SealedProvider) {
		if key != "" {
			p.key = key
		}
	}
}

// WithCacheTTL sets how long decrypted credentials are reused. Default: 5m.
func WithCacheTTL(ttl time.Duration) SealedOption {
	return func(p *SealedProvider) {
		p.cacheTTL = ttl
	}
}

// NewSealedProvider reads credentials through an existing keeper and bucket.
// The caller keeps ownership of both.
func NewSealedProvider(keeper *secrets.Keeper, bucket *blob.Bucket, opts ...SealedOption) *SealedProvider {
	p := &SealedProvider{
		keeper:   keeper,
		bucket:   bucket,
		key:      DefaultObjectKey,
		cacheTTL: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OpenSealedProvider opens the keeper and bucket by URL, e.g.
// "base64key://<key>" and "file:///etc/learner". The credentials are read
// once so misconfiguration fails at startup.
func OpenSealedProvider(ctx context.Context, keeperURL, bucketURL string, opts ...SealedOption) (*SealedProvider, error) {
	if keeperURL == "" || bucketURL == "" {
		return nil, fmt.Errorf("%w: keeper and bucket URLs are required", ErrInvalidCredentials)
	}

	keeper, err := secrets.OpenKeeper(ctx, keeperURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open secret keeper: %w", err)
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		_ = keeper.Close()
		return nil, fmt.Errorf("failed to open credentials bucket: %w", err)
	}

	p := NewSealedProvider(keeper, bucket, opts...)
	p.owned = true

	if _, err := p.Credentials(ctx); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// Credentials returns cached credentials or reloads them from the bucket.
func (p *SealedProvider) Credentials(ctx context.Context) (*Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrProviderClosed
	}

	if p.cached == nil || !time.Now().Before(p.cacheExpiry) {
		ciphertext, err := p.bucket.ReadAll(ctx, p.key)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials %q: %w", p.key, err)
		}
		creds, err := Open(ctx, p.keeper, ciphertext)
		if err != nil {
			return nil, err
		}
		p.cached = creds
		p.cacheExpiry = time.Now().Add(p.cacheTTL)
	}

	if p.cached.IsExpired() {
		return nil, ErrCredentialsExpired
	}
	return p.cached, nil
}

// Refresh drops the cache so the next call rereads the bucket.
func (p *SealedProvider) Refresh() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = nil
	p.cacheExpiry = time.Time{}
}

// Close releases the keeper and bucket when the provider opened them.
func (p *SealedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if !p.owned {
		return nil
	}
	return errors.Join(p.keeper.Close(), p.bucket.Close())
}
