package identity

import (
	"fmt"
	"time"
)

// Config holds the process-wide options the core components need. It is built
// once at process start and passed by reference into each constructor; no
// component reads ambient global state at call time.
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetCodeTTL() time.Duration
	GetBcryptCost() int
}

// SimpleConfig is the concrete Config used by most hosts
type SimpleConfig struct {
	SigningKey      string
	Issuer          string
	Audience        []string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	CodeTTL         time.Duration
	BcryptCost      int
}

// DefaultConfig returns a SimpleConfig with the contract durations: 5 minute
// codes, 7 day sessions, 15 minute access tokens.
func DefaultConfig(signingKey string) *SimpleConfig {
	return &SimpleConfig{
		SigningKey:      signingKey,
		Issuer:          "go-identity",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		CodeTTL:         300 * time.Second,
		BcryptCost:      DefaultBcryptCost,
	}
}

func (c *SimpleConfig) GetSigningKey() string { return c.SigningKey }

func (c *SimpleConfig) GetIssuer() string { return c.Issuer }

func (c *SimpleConfig) GetAudience() []string { return c.Audience }

func (c *SimpleConfig) GetAccessTokenTTL() time.Duration {
	if c.AccessTokenTTL <= 0 {
		return 15 * time.Minute
	}
	return c.AccessTokenTTL
}

func (c *SimpleConfig) GetRefreshTokenTTL() time.Duration {
	if c.RefreshTokenTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return c.RefreshTokenTTL
}

func (c *SimpleConfig) GetCodeTTL() time.Duration {
	if c.CodeTTL <= 0 {
		return 300 * time.Second
	}
	return c.CodeTTL
}

func (c *SimpleConfig) GetBcryptCost() int {
	if c.BcryptCost <= 0 {
		return DefaultBcryptCost
	}
	return c.BcryptCost
}

// Validate catches the one misconfiguration that is fatal at runtime
func (c *SimpleConfig) Validate() error {
	if c.SigningKey == "" {
		return fmt.Errorf("identity: signing key must not be empty")
	}
	return nil
}

var _ Config = (*SimpleConfig)(nil)

// Logger is the minimal logging surface the components need; hosts plug in
// their own implementation through the WithLogger options.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
