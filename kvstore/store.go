// Package kvstore is the key-value persistence adapter for the identity core,
// built on redis. Records are stored as JSON values; the conditional writes
// the core depends on (duplicate email, one pending application per user,
// single-use codes, refresh rotation) are implemented with SETNX and small
// Lua scripts so each one is a single atomic round trip.
//
// Key construction inside the scripts assumes a single keyspace; running
// against a redis cluster would need hash tags on the per-entity keys.
package kvstore

import (
	"context"
	"errors"
	"log"

	"github.com/goliatone/go-identity"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "idn"

// Store implements identity.Stores over a redis connection
type Store struct {
	client   redis.UniversalClient
	prefix   string
	users    *users
	codes    *codes
	sessions *sessions
	apps     *applications
}

// StoreOption customizes Store construction
type StoreOption func(*Store)

// WithPrefix overrides the key namespace prefix
func WithPrefix(prefix string) StoreOption {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New wraps an existing redis client
func New(client redis.UniversalClient, opts ...StoreOption) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.users = &users{store: s}
	s.codes = &codes{store: s}
	s.sessions = &sessions{store: s}
	s.apps = &applications{store: s}

	return s
}

// Open connects to a redis instance at addr
func Open(addr string, opts ...StoreOption) *Store {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return New(client, opts...)
}

func (s *Store) Validate() error {
	if s.client == nil {
		return errors.New("kvstore: redis client should be initialized")
	}
	return nil
}

func (s *Store) MustValidate() {
	if err := s.Validate(); err != nil {
		log.Panic(err)
	}
}

// Ping verifies the connection is usable
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Users() identity.UserStore { return s.users }

func (s *Store) Codes() identity.CodeStore { return s.codes }

func (s *Store) Sessions() identity.SessionStore { return s.sessions }

func (s *Store) RoleApplications() identity.RoleApplicationStore { return s.apps }

var _ identity.Stores = (*Store)(nil)

func (s *Store) key(parts ...string) string {
	key := s.prefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
