// Package credentials loads the NATS connection credentials used by the
// learner daemon. Credentials are sealed with a gocloud.dev/secrets keeper
// and stored as an object in a gocloud.dev/blob bucket, so the same code
// serves local development (base64key://, file://) and cloud KMS backends.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	natsbus "github.com/plaenen/learnerstore/pkg/messaging/nats"
)

var (
	// ErrCredentialsExpired is returned when credentials have expired.
	ErrCredentialsExpired = errors.New("credentials expired")

	// ErrInvalidCredentials is returned when credentials are malformed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrProviderClosed is returned when a closed provider is used.
	ErrProviderClosed = errors.New("provider is closed")
)

const redacted = "***"

// Type names the authentication scheme.
type Type string

const (
	// TypeToken is a shared bearer token.
	TypeToken Type = "token"

	// TypeUserPassword is a username/password pair.
	TypeUserPassword Type = "user_password"
)

// Credentials authenticate a NATS connection.
type Credentials struct {
	Type      Type       `json:"type"`
	Token     string     `json:"token,omitempty"`
	User      string     `json:"user,omitempty"`
	Password  string     `json:"password,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// NewToken returns token credentials.
func NewToken(token string) *Credentials {
	return &Credentials{Type: TypeToken, Token: token}
}

// NewUserPassword returns username/password credentials.
func NewUserPassword(user, password string) *Credentials {
	return &Credentials{Type: TypeUserPassword, User: user, Password: password}
}

// IsExpired reports whether the credentials carry an expiry in the past.
func (c *Credentials) IsExpired() bool {
	return c.ExpiresAt != nil && time.Now().After(*c.ExpiresAt)
}

// Validate ensures credentials are well-formed for their type.
func (c *Credentials) Validate() error {
	switch c.Type {
	case "":
		return fmt.Errorf("%w: type is required", ErrInvalidCredentials)
	case TypeToken:
		if c.Token == "" {
			return fmt.Errorf("%w: token is required", ErrInvalidCredentials)
		}
	case TypeUserPassword:
		if c.User == "" || c.Password == "" {
			return fmt.Errorf("%w: user and password are required", ErrInvalidCredentials)
		}
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidCredentials, c.Type)
	}
	return nil
}

// NATSOptions returns the client options that present these credentials.
func (c *Credentials) NATSOptions() []nats.Option {
	switch c.Type {
	case TypeToken:
		return []nats.Option{nats.Token(c.Token)}
	case TypeUserPassword:
		return []nats.Option{nats.UserInfo(c.User, c.Password)}
	default:
		return nil
	}
}

// ServerOption configures an embedded server to require these credentials.
func (c *Credentials) ServerOption() natsbus.ServerOption {
	return func(opts *server.Options) {
		switch c.Type {
		case TypeToken:
			opts.Authorization = c.Token
		case TypeUserPassword:
			opts.Username = c.User
			opts.Password = c.Password
		}
	}
}

// Redacted returns a copy with every secret replaced.
func (c *Credentials) Redacted() Credentials {
	out := *c
	if out.Token != "" {
		out.Token = redacted
	}
	if out.Password != "" {
		out.Password = redacted
	}
	return out
}

// String never includes secrets.
func (c *Credentials) String() string {
	if c.User != "" {
		return fmt.Sprintf("%s(%s)", c.Type, c.User)
	}
	return string(c.Type)
}

// LogValue implements slog.LogValuer so credentials never leak into logs.
func (c *Credentials) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("type", string(c.Type))}
	if c.User != "" {
		attrs = append(attrs, slog.String("user", c.User))
	}
	if c.ExpiresAt != nil {
		attrs = append(attrs, slog.Time("expires_at", *c.ExpiresAt))
	}
	return slog.GroupValue(attrs...)
}

// MarshalJSON redacts secrets. Use Seal to persist the real values.
func (c *Credentials) MarshalJSON() ([]byte, error) {
	type plain Credentials
	out := plain(c.Redacted())
	return json.Marshal(&out)
}
