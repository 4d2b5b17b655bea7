package bunstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newTestStore opens a uniquely named shared-cache in-memory database so each
// test gets a fresh schema.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:bunstore-%s?mode=memory&cache=shared", uuid.NewString())
	store, err := OpenSQLite(dsn)
	require.NoError(t, err)
	store.DB().SetMaxOpenConns(1)

	t.Cleanup(func() { store.DB().Close() })

	require.NoError(t, store.InitSchema(context.Background()))
	store.MustValidate()

	return store
}

func seedUser(t *testing.T, store *Store, email string, role identity.UserRole) *identity.User {
	t.Helper()

	now := time.Now()
	user := &identity.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "$2a$04$fakehashfakehashfakehash",
		Name:         "Seed User",
		Role:         role,
		Status:       identity.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := store.Users().Create(context.Background(), user)
	require.NoError(t, err)

	return created
}
