package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/secrets"
)

// DefaultObjectKey is the bucket key holding sealed credentials.
const DefaultObjectKey = "nats-credentials.sealed"

// secretData is the plaintext sealed by a keeper.
type secretData struct {
	Type      Type       `json:"type"`
	Token     string     `json:"token,omitempty"`
	User      string     `json:"user,omitempty"`
	Password  string     `json:"password,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Version   int        `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
}

// Seal validates creds and encrypts them with keeper.
func Seal(ctx context.Context, keeper *secrets.Keeper, creds *Credentials) ([]byte, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(secretData{
		Type:      creds.Type,
		Token:     creds.Token,
		User:      creds.User,
		Password:  creds.Password,
		ExpiresAt: creds.ExpiresAt,
		Version:   1,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credentials: %w", err)
	}

	ciphertext, err := keeper.Encrypt(ctx, plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	return ciphertext, nil
}

// Open decrypts credentials sealed by Seal and validates them.
func Open(ctx context.Context, keeper *secrets.Keeper, ciphertext []byte) (*Credentials, error) {
	plaintext, err := keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	var data secretData
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	creds := &Credentials{
		Type:      data.Type,
		Token:     data.Token,
		User:      data.User,
		Password:  data.Password,
		ExpiresAt: data.ExpiresAt,
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return creds, nil
}

// Store seals creds and writes them to bucket under key.
func Store(ctx context.Context, keeper *secrets.Keeper, bucket *blob.Bucket, key string, creds *Credentials) error {
	if key == "" {
		key = DefaultObjectKey
	}

	ciphertext, err := Seal(ctx, keeper, creds)
	if err != nil {
		return err
	}
	if err := bucket.WriteAll(ctx, key, ciphertext, &blob.WriterOptions{ContentType: "application/octet-stream"}); err != nil {
		return fmt.Errorf("failed to write credentials %q: %w", key, err)
	}
	return nil
}
