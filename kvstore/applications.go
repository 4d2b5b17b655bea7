package kvstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type applicationRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Role       string    `json:"requested_role"`
	Reason     *string   `json:"reason,omitempty"`
	Status     string    `json:"status"`
	ReviewerID *string   `json:"reviewer_id,omitempty"`
	Comment    *string   `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toApplicationRecord(a *identity.RoleApplication) applicationRecord {
	record := applicationRecord{
		ID:        a.ID.String(),
		UserID:    a.UserID.String(),
		Role:      string(a.Role),
		Reason:    a.Reason,
		Status:    string(a.Status),
		Comment:   a.Comment,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if a.ReviewerID != nil {
		reviewer := a.ReviewerID.String()
		record.ReviewerID = &reviewer
	}
	return record
}

func (r applicationRecord) toApplication() (*identity.RoleApplication, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return nil, err
	}

	app := &identity.RoleApplication{
		ID:        id,
		UserID:    userID,
		Role:      identity.UserRole(r.Role),
		Reason:    r.Reason,
		Status:    identity.ApplicationStatus(r.Status),
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.ReviewerID != nil {
		reviewer, err := uuid.Parse(*r.ReviewerID)
		if err != nil {
			return nil, err
		}
		app.ReviewerID = &reviewer
	}

	return app, nil
}

type historyRecord struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	FromStatus    string    `json:"from_status,omitempty"`
	ToStatus      string    `json:"to_status"`
	ActorID       string    `json:"actor_id"`
	Comment       *string   `json:"comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toHistoryRecord(e *identity.RoleApplicationHistoryEntry) historyRecord {
	return historyRecord{
		ID:            e.ID.String(),
		ApplicationID: e.ApplicationID.String(),
		FromStatus:    string(e.FromStatus),
		ToStatus:      string(e.ToStatus),
		ActorID:       e.ActorID.String(),
		Comment:       e.Comment,
		CreatedAt:     e.CreatedAt,
	}
}

func (r historyRecord) toEntry() (*identity.RoleApplicationHistoryEntry, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, err
	}
	appID, err := uuid.Parse(r.ApplicationID)
	if err != nil {
		return nil, err
	}
	actorID, err := uuid.Parse(r.ActorID)
	if err != nil {
		return nil, err
	}

	return &identity.RoleApplicationHistoryEntry{
		ID:            id,
		ApplicationID: appID,
		FromStatus:    identity.ApplicationStatus(r.FromStatus),
		ToStatus:      identity.ApplicationStatus(r.ToStatus),
		ActorID:       actorID,
		Comment:       r.Comment,
		CreatedAt:     r.CreatedAt,
	}, nil
}

// createPendingScript claims the per-user pending slot, then writes the
// application, both indexes, and the opening history entry. A taken slot
// means another pending application already exists.
var createPendingScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
redis.call('RPUSH', KEYS[5], ARGV[4])
return 1
`)

// transitionScript is the guarded state change: it only proceeds when the
// stored status still matches the expected from-status, then releases the
// pending slot, removes the global pending index entry, appends history,
// and optionally rewrites the owning user's role.
var transitionScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
	return 0
end
local app = cjson.decode(raw)
if app.status ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2])
redis.call('DEL', KEYS[2])
redis.call('ZREM', KEYS[3], app.id)
redis.call('RPUSH', KEYS[4], ARGV[3])
if ARGV[4] ~= '' then
	local uraw = redis.call('GET', KEYS[5])
	if uraw then
		local user = cjson.decode(uraw)
		user.user_role = ARGV[4]
		user.updated_at = ARGV[5]
		redis.call('SET', KEYS[5], cjson.encode(user))
	end
end
return 1
`)

type applications struct {
	store *Store
}

func (s *applications) appKey(id string) string {
	return s.store.key("roleapp", id)
}

func (s *applications) pendingSlotKey(userID string) string {
	return s.store.key("roleapp", "pending", "user", userID)
}

func (s *applications) pendingIndexKey() string {
	return s.store.key("roleapp", "pending")
}

func (s *applications) userIndexKey(userID string) string {
	return s.store.key("roleapp", "user", userID)
}

func (s *applications) historyKey(appID string) string {
	return s.store.key("roleapp", "history", appID)
}

func (s *applications) CreatePending(ctx context.Context, app *identity.RoleApplication, entry *identity.RoleApplicationHistoryEntry) error {
	appRaw, err := json.Marshal(toApplicationRecord(app))
	if err != nil {
		return err
	}
	entryRaw, err := json.Marshal(toHistoryRecord(entry))
	if err != nil {
		return err
	}

	keys := []string{
		s.pendingSlotKey(app.UserID.String()),
		s.appKey(app.ID.String()),
		s.userIndexKey(app.UserID.String()),
		s.pendingIndexKey(),
		s.historyKey(app.ID.String()),
	}

	ok, err := createPendingScript.Run(ctx, s.store.client, keys,
		app.ID.String(), appRaw, app.CreatedAt.Unix(), entryRaw).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return identity.ErrDuplicatePendingApplication
	}

	return nil
}

func (s *applications) GetByID(ctx context.Context, id uuid.UUID) (*identity.RoleApplication, error) {
	raw, err := s.store.client.Get(ctx, s.appKey(id.String())).Bytes()
	if err != nil {
		if isNil(err) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}

	var record applicationRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}

	return record.toApplication()
}

func (s *applications) ListPending(ctx context.Context) ([]*identity.RoleApplication, error) {
	return s.listByIndex(ctx, s.pendingIndexKey())
}

func (s *applications) ListByUser(ctx context.Context, userID uuid.UUID) ([]*identity.RoleApplication, error) {
	return s.listByIndex(ctx, s.userIndexKey(userID.String()))
}

// listByIndex walks a creation-time sorted set newest first and loads each
// application by id; ids whose record vanished are skipped.
func (s *applications) listByIndex(ctx context.Context, indexKey string) ([]*identity.RoleApplication, error) {
	ids, err := s.store.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	apps := make([]*identity.RoleApplication, 0, len(ids))
	for _, id := range ids {
		raw, err := s.store.client.Get(ctx, s.appKey(id)).Bytes()
		if err != nil {
			if isNil(err) {
				continue
			}
			return nil, err
		}

		var record applicationRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, err
		}

		app, err := record.toApplication()
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}

	return apps, nil
}

func (s *applications) Transition(ctx context.Context, app *identity.RoleApplication, entry *identity.RoleApplicationHistoryEntry, promote identity.UserRole) error {
	appRaw, err := json.Marshal(toApplicationRecord(app))
	if err != nil {
		return err
	}
	entryRaw, err := json.Marshal(toHistoryRecord(entry))
	if err != nil {
		return err
	}

	keys := []string{
		s.appKey(app.ID.String()),
		s.pendingSlotKey(app.UserID.String()),
		s.pendingIndexKey(),
		s.historyKey(app.ID.String()),
		s.store.key("user", app.UserID.String()),
	}

	ok, err := transitionScript.Run(ctx, s.store.client, keys,
		string(entry.FromStatus), appRaw, entryRaw,
		string(promote), app.UpdatedAt.Format(time.RFC3339Nano)).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return identity.ErrInvalidTransition
	}

	return nil
}

func (s *applications) History(ctx context.Context, applicationID uuid.UUID) ([]*identity.RoleApplicationHistoryEntry, error) {
	raws, err := s.store.client.LRange(ctx, s.historyKey(applicationID.String()), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]*identity.RoleApplicationHistoryEntry, 0, len(raws))
	for _, raw := range raws {
		var record historyRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, err
		}

		entry, err := record.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

var _ identity.RoleApplicationStore = (*applications)(nil)
