package kvstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// userRecord is the storage shape; the model's JSON tags hide the password
// hash from API payloads, so persistence gets its own encoding.
type userRecord struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Name         string    `json:"name"`
	Role         string    `json:"user_role"`
	Status       string    `json:"status"`
	Language     string    `json:"language,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toUserRecord(u *identity.User) userRecord {
	return userRecord{
		ID:           u.ID.String(),
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		Role:         string(u.Role),
		Status:       string(u.Status),
		Language:     u.Language,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (r userRecord) toUser() (*identity.User, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, err
	}

	user := &identity.User{
		ID:           id,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Name:         r.Name,
		Role:         identity.UserRole(r.Role),
		Status:       identity.UserStatus(r.Status),
		Language:     r.Language,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	user.EnsureStatus()

	return user, nil
}

// createUserScript claims the email index and writes the record together;
// a taken index means a concurrent registration already won.
var createUserScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2])
return 1
`)

type users struct {
	store *Store
}

func (s *users) userKey(id string) string {
	return s.store.key("user", id)
}

func (s *users) emailKey(email string) string {
	return s.store.key("user", "email", identity.NormalizeEmail(email))
}

func (s *users) Create(ctx context.Context, user *identity.User) (*identity.User, error) {
	user.Email = identity.NormalizeEmail(user.Email)
	user.EnsureStatus()

	raw, err := json.Marshal(toUserRecord(user))
	if err != nil {
		return nil, err
	}

	keys := []string{s.emailKey(user.Email), s.userKey(user.ID.String())}
	ok, err := createUserScript.Run(ctx, s.store.client, keys, user.ID.String(), raw).Int()
	if err != nil {
		return nil, err
	}
	if ok == 0 {
		return nil, identity.ErrDuplicateEmail
	}

	return user, nil
}

func (s *users) GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	return s.getByKey(ctx, s.userKey(id.String()))
}

func (s *users) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	id, err := s.store.client.Get(ctx, s.emailKey(email)).Result()
	if err != nil {
		if isNil(err) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	return s.getByKey(ctx, s.userKey(id))
}

func (s *users) getByKey(ctx context.Context, key string) (*identity.User, error) {
	raw, err := s.store.client.Get(ctx, key).Bytes()
	if err != nil {
		if isNil(err) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}

	var record userRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}

	return record.toUser()
}

func (s *users) UpdateProfile(ctx context.Context, id uuid.UUID, patch identity.ProfilePatch) (*identity.User, error) {
	return s.mutate(ctx, id, func(user *identity.User) {
		if patch.Name != nil {
			user.Name = *patch.Name
		}
		if patch.Language != nil {
			user.Language = *patch.Language
		}
	})
}

func (s *users) UpdateStatus(ctx context.Context, id uuid.UUID, status identity.UserStatus) (*identity.User, error) {
	return s.mutate(ctx, id, func(user *identity.User) {
		user.Status = status
	})
}

func (s *users) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	_, err := s.mutate(ctx, id, func(user *identity.User) {
		user.PasswordHash = passwordHash
	})
	return err
}

// mutate is read-modify-write; last writer wins, which is acceptable for
// profile-shaped fields. Role promotion goes through the application store's
// transition script instead.
func (s *users) mutate(ctx context.Context, id uuid.UUID, apply func(*identity.User)) (*identity.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	apply(user)
	user.UpdatedAt = time.Now()

	raw, err := json.Marshal(toUserRecord(user))
	if err != nil {
		return nil, err
	}

	if err := s.store.client.Set(ctx, s.userKey(id.String()), raw, 0).Err(); err != nil {
		return nil, err
	}

	return user, nil
}

var _ identity.UserStore = (*users)(nil)
