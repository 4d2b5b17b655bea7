package kvstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type sessionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenJTI  string    `json:"token_jti"`
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func toSessionRecord(s *identity.Session) sessionRecord {
	return sessionRecord{
		ID:        s.ID.String(),
		UserID:    s.UserID.String(),
		TokenJTI:  s.TokenJTI,
		TokenHash: s.TokenHash,
		ExpiresAt: s.ExpiresAt,
		CreatedAt: s.CreatedAt,
	}
}

func (r sessionRecord) toSession() (*identity.Session, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return nil, err
	}

	return &identity.Session{
		ID:        id,
		UserID:    userID,
		TokenJTI:  r.TokenJTI,
		TokenHash: r.TokenHash,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
	}, nil
}

// replaceSessionScript deletes the old session by refresh-token hash and
// writes the replacement. A missing old row means a concurrent refresh or a
// logout got there first; the script returns 0 and writes nothing.
var replaceSessionScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
	return 0
end
local old = cjson.decode(raw)
redis.call('DEL', KEYS[1])
redis.call('DEL', ARGV[2] .. old.token_jti)
redis.call('SET', KEYS[2], ARGV[1], 'EX', ARGV[4])
redis.call('SET', KEYS[3], ARGV[3], 'EX', ARGV[4])
return 1
`)

// deleteByJTIScript resolves the jti index to the hash key and removes both
var deleteByJTIScript = redis.NewScript(`
local hash = redis.call('GET', KEYS[1])
if not hash then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('DEL', ARGV[1] .. hash)
return 1
`)

type sessions struct {
	store *Store
}

func (s *sessions) hashKey(tokenHash string) string {
	return s.store.key("session", "hash", tokenHash)
}

func (s *sessions) jtiKey(jti string) string {
	return s.store.key("session", "jti", jti)
}

func (s *sessions) hashPrefix() string {
	return s.store.key("session", "hash") + ":"
}

func (s *sessions) jtiPrefix() string {
	return s.store.key("session", "jti") + ":"
}

func sessionTTL(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	return ttl
}

func (s *sessions) Create(ctx context.Context, session *identity.Session) error {
	raw, err := json.Marshal(toSessionRecord(session))
	if err != nil {
		return err
	}

	ttl := sessionTTL(session.ExpiresAt)
	pipe := s.store.client.TxPipeline()
	pipe.Set(ctx, s.hashKey(session.TokenHash), raw, ttl)
	pipe.Set(ctx, s.jtiKey(session.TokenJTI), session.TokenHash, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *sessions) GetByTokenHash(ctx context.Context, tokenHash string) (*identity.Session, error) {
	raw, err := s.store.client.Get(ctx, s.hashKey(tokenHash)).Bytes()
	if err != nil {
		if isNil(err) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}

	var record sessionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}

	return record.toSession()
}

func (s *sessions) Replace(ctx context.Context, oldTokenHash string, next *identity.Session) error {
	raw, err := json.Marshal(toSessionRecord(next))
	if err != nil {
		return err
	}

	keys := []string{
		s.hashKey(oldTokenHash),
		s.hashKey(next.TokenHash),
		s.jtiKey(next.TokenJTI),
	}
	ttl := int64(sessionTTL(next.ExpiresAt).Seconds())
	if ttl < 1 {
		ttl = 1
	}

	ok, err := replaceSessionScript.Run(ctx, s.store.client, keys,
		raw, s.jtiPrefix(), next.TokenHash, ttl).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return identity.ErrInvalidToken
	}

	return nil
}

func (s *sessions) DeleteByJTI(ctx context.Context, jti string) error {
	keys := []string{s.jtiKey(jti)}
	ok, err := deleteByJTIScript.Run(ctx, s.store.client, keys, s.hashPrefix()).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (s *sessions) ExistsByJTI(ctx context.Context, jti string) (bool, error) {
	n, err := s.store.client.Exists(ctx, s.jtiKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteExpired is a no-op here: session keys carry a TTL matching their
// expiry, so redis reaps them itself.
func (s *sessions) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

var _ identity.SessionStore = (*sessions)(nil)
