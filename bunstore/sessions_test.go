package bunstore

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(userID uuid.UUID, expiresAt time.Time) *identity.Session {
	return &identity.Session{
		ID:        uuid.New(),
		UserID:    userID,
		TokenJTI:  uuid.NewString(),
		TokenHash: identity.HashToken(uuid.NewString()),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
}

func TestSessionsCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	user := seedUser(t, store, "user@example.com", identity.RoleStudent)
	session := newSession(user.ID, time.Now().Add(time.Hour))

	require.NoError(t, store.Sessions().Create(ctx, session))

	found, err := store.Sessions().GetByTokenHash(ctx, session.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, session.ID, found.ID)
	assert.Equal(t, session.TokenJTI, found.TokenJTI)

	_, err = store.Sessions().GetByTokenHash(ctx, identity.HashToken("unknown"))
	assert.True(t, identity.IsNotFound(err))

	alive, err := store.Sessions().ExistsByJTI(ctx, session.TokenJTI)
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestSessionsReplaceRotation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	user := seedUser(t, store, "user@example.com", identity.RoleStudent)
	old := newSession(user.ID, time.Now().Add(time.Hour))
	require.NoError(t, store.Sessions().Create(ctx, old))

	next := newSession(user.ID, time.Now().Add(time.Hour))
	require.NoError(t, store.Sessions().Replace(ctx, old.TokenHash, next))

	// the old row is gone, the replacement is live
	_, err := store.Sessions().GetByTokenHash(ctx, old.TokenHash)
	assert.True(t, identity.IsNotFound(err))

	alive, err := store.Sessions().ExistsByJTI(ctx, old.TokenJTI)
	require.NoError(t, err)
	assert.False(t, alive)

	_, err = store.Sessions().GetByTokenHash(ctx, next.TokenHash)
	require.NoError(t, err)

	// replaying the consumed hash fails and must not insert anything
	replay := newSession(user.ID, time.Now().Add(time.Hour))
	err = store.Sessions().Replace(ctx, old.TokenHash, replay)
	assert.True(t, identity.IsInvalidToken(err))

	_, err = store.Sessions().GetByTokenHash(ctx, replay.TokenHash)
	assert.True(t, identity.IsNotFound(err), "losing replace must not leave a session behind")
}

func TestSessionsDeleteByJTI(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	user := seedUser(t, store, "user@example.com", identity.RoleStudent)
	session := newSession(user.ID, time.Now().Add(time.Hour))
	require.NoError(t, store.Sessions().Create(ctx, session))

	require.NoError(t, store.Sessions().DeleteByJTI(ctx, session.TokenJTI))

	err := store.Sessions().DeleteByJTI(ctx, session.TokenJTI)
	assert.True(t, identity.IsNotFound(err))
}

func TestSessionsDeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()

	user := seedUser(t, store, "user@example.com", identity.RoleStudent)
	expired1 := newSession(user.ID, now.Add(-time.Hour))
	expired2 := newSession(user.ID, now.Add(-time.Minute))
	live := newSession(user.ID, now.Add(time.Hour))

	require.NoError(t, store.Sessions().Create(ctx, expired1))
	require.NoError(t, store.Sessions().Create(ctx, expired2))
	require.NoError(t, store.Sessions().Create(ctx, live))

	n, err := store.Sessions().DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	alive, err := store.Sessions().ExistsByJTI(ctx, live.TokenJTI)
	require.NoError(t, err)
	assert.True(t, alive)
}
