package kvstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/redis/go-redis/v9"
)

// codeRecord keeps the expiry as unix seconds so the redeem script can
// compare it without parsing timestamps.
type codeRecord struct {
	Code      string `json:"code"`
	ExpiresAt int64  `json:"expires_at"`
	Used      bool   `json:"used"`
}

// redeemCodeScript flips the matching unused, unexpired code to used in one
// atomic step; any mismatch returns 0 and the caller reports ErrInvalidCode.
var redeemCodeScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
	return 0
end
local c = cjson.decode(raw)
if c.used then
	return 0
end
if c.code ~= ARGV[1] then
	return 0
end
if tonumber(c.expires_at) <= tonumber(ARGV[2]) then
	return 0
end
c.used = true
redis.call('SET', KEYS[1], cjson.encode(c), 'KEEPTTL')
return 1
`)

type codes struct {
	store *Store
}

func (s *codes) codeKey(email string, purpose identity.CodePurpose) string {
	return s.store.key("code", identity.NormalizeEmail(email), string(purpose))
}

// Save keeps one live code per email+purpose; issuing a new code supersedes
// the previous one. The key carries a TTL so stale codes clean themselves up.
func (s *codes) Save(ctx context.Context, code *identity.VerificationCode) error {
	record := codeRecord{
		Code:      code.Code,
		ExpiresAt: code.ExpiresAt.Unix(),
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}

	// the TTL comes from the code's own lifetime, not the wall clock, so a
	// host running on an injected clock still gets a sane key expiry
	lifetime := code.ExpiresAt.Sub(code.CreatedAt)
	if code.CreatedAt.IsZero() || lifetime <= 0 {
		lifetime = time.Until(code.ExpiresAt)
	}
	if lifetime <= 0 {
		lifetime = time.Second
	}

	// keep the key around past logical expiry so redemption of an expired
	// code is distinguishable from a missing one in logs
	return s.store.client.Set(ctx, s.codeKey(code.Email, code.Purpose), raw, 2*lifetime).Err()
}

func (s *codes) Redeem(ctx context.Context, email, code string, purpose identity.CodePurpose, now time.Time) error {
	keys := []string{s.codeKey(email, purpose)}
	ok, err := redeemCodeScript.Run(ctx, s.store.client, keys, code, now.Unix()).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return identity.ErrInvalidCode
	}
	return nil
}

var _ identity.CodeStore = (*codes)(nil)
