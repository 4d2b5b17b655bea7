// Package gateware adapts the authorization gate to fiber. The middleware
// extracts the bearer token, runs the gate's role check, and stores the
// resolved caller in the request locals for handlers downstream.
package gateware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-identity"
)

// ErrTokenMissingOrMalformed is returned by extractors when no usable token
// is present in the request.
var ErrTokenMissingOrMalformed = errors.New("missing or malformed access token")

// RoleRequirer is the gate surface the middleware needs; it mirrors
// identity.Gate.RequireRole without binding the package to the concrete type.
type RoleRequirer interface {
	RequireRole(ctx context.Context, token string, allowed ...identity.UserRole) (*identity.Caller, error)
}

// Config parameterizes the middleware
type Config struct {
	// Gate resolves tokens to callers; required
	Gate RoleRequirer

	// Roles is the allowed set; empty admits any authenticated caller
	Roles []identity.UserRole

	// Filter skips the middleware for matching requests
	Filter func(*fiber.Ctx) bool

	// ErrorHandler renders authentication and authorization failures
	ErrorHandler fiber.ErrorHandler

	// ContextKey is the locals key the caller is stored under
	ContextKey string

	// TokenLookup is a comma-separated list of sources, e.g.
	// "header:Authorization,cookie:access_token,query:token"
	TokenLookup string

	// AuthScheme is the expected header prefix, default "Bearer"
	AuthScheme string
}

const defaultContextKey = "identity:caller"

var defaultTokenLookup = "header:" + fiber.HeaderAuthorization

// New returns a fiber handler enforcing the configured role set
func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)
	extractors := getExtractors(cfg.TokenLookup, cfg.AuthScheme)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		token, err := extractToken(c, extractors)
		if err != nil {
			return cfg.ErrorHandler(c, identity.ErrUnauthenticated)
		}

		caller, err := cfg.Gate.RequireRole(c.UserContext(), token, cfg.Roles...)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		c.Locals(cfg.ContextKey, caller)

		return c.Next()
	}
}

// RequireAuthenticated admits any caller the gate can resolve
func RequireAuthenticated(gate RoleRequirer) fiber.Handler {
	return New(Config{Gate: gate})
}

// RequireRoles admits callers holding one of the given roles
func RequireRoles(gate RoleRequirer, roles ...identity.UserRole) fiber.Handler {
	return New(Config{Gate: gate, Roles: roles})
}

// CallerFromCtx returns the caller stored by the middleware, or nil when the
// request never passed through it.
func CallerFromCtx(c *fiber.Ctx) *identity.Caller {
	return callerFromLocals(c, defaultContextKey)
}

// CallerFromCtxKey is CallerFromCtx for a custom ContextKey
func CallerFromCtxKey(c *fiber.Ctx, key string) *identity.Caller {
	return callerFromLocals(c, key)
}

func callerFromLocals(c *fiber.Ctx, key string) *identity.Caller {
	caller, ok := c.Locals(key).(*identity.Caller)
	if !ok {
		return nil
	}
	return caller
}

func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Gate == nil {
		panic("gateware: Config.Gate is required")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = defaultContextKey
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	return cfg
}

// defaultErrorHandler keeps the two outcomes distinct on the wire:
// 401 for authentication failures, 403 for authorization failures.
func defaultErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusUnauthorized
	message := "authentication required"

	if identity.IsForbidden(err) {
		status = fiber.StatusForbidden
		message = "insufficient role"
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

type tokenExtractor func(*fiber.Ctx) (string, error)

func extractToken(c *fiber.Ctx, extractors []tokenExtractor) (string, error) {
	for _, extractor := range extractors {
		if token, err := extractor(c); err == nil && token != "" {
			return token, nil
		}
	}
	return "", ErrTokenMissingOrMalformed
}

// getExtractors parses a "source:name" lookup list into extractor functions
func getExtractors(tokenLookup, authScheme string) []tokenExtractor {
	var extractors []tokenExtractor

	for _, part := range strings.Split(tokenLookup, ",") {
		fields := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(fields) != 2 {
			continue
		}

		name := strings.TrimSpace(fields[1])
		switch strings.TrimSpace(fields[0]) {
		case "header":
			extractors = append(extractors, tokenFromHeader(name, authScheme))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(name))
		case "query":
			extractors = append(extractors, tokenFromQuery(name))
		}
	}

	return extractors
}

func tokenFromHeader(header, authScheme string) tokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		raw := c.Get(header)
		l := len(authScheme)
		// the scheme must be followed by a separating space; "Bearerxyz"
		// is not a bearer token
		if len(raw) > l+1 && strings.EqualFold(raw[:l], authScheme) && raw[l] == ' ' {
			return strings.TrimSpace(raw[l+1:]), nil
		}
		return "", ErrTokenMissingOrMalformed
	}
}

func tokenFromCookie(name string) tokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}

func tokenFromQuery(name string) tokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(name)
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}
