// Package bunstore is the relational persistence adapter for the identity
// core, built on bun. The uniqueness races the core delegates to storage
// (duplicate email, duplicate pending application, double code redemption)
// land on unique indexes and guarded UPDATEs here; business conditions are
// translated to the identity error taxonomy at this boundary.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"log"
	"sort"
	"strings"

	"github.com/goliatone/go-identity"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Store implements identity.Stores over a single bun connection
type Store struct {
	db       *bun.DB
	users    *users
	codes    *codes
	sessions *sessions
	apps     *applications
}

// New wraps an existing bun database
func New(db *bun.DB) *Store {
	return &Store{
		db:       db,
		users:    newUsers(db),
		codes:    newCodes(db),
		sessions: newSessions(db),
		apps:     newApplications(db),
	}
}

// OpenSQLite opens a sqlite-backed store; use ":memory:" style DSNs in tests
func OpenSQLite(dsn string) (*Store, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	return New(db), nil
}

// DB exposes the underlying handle for hosts that manage their own lifecycle
func (s *Store) DB() *bun.DB {
	return s.db
}

// InitSchema applies the embedded migrations in lexical order
func (s *Store) InitSchema(ctx context.Context) error {
	migrations := identity.GetMigrationsFS()

	var files []string
	err := fs.WalkDir(migrations, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".sql") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, file := range files {
		raw, err := fs.ReadFile(migrations, file)
		if err != nil {
			return err
		}

		// some drivers only execute the first statement of a batch
		for _, stmt := range strings.Split(string(raw), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *Store) Validate() error {
	if s.users == nil || s.codes == nil || s.sessions == nil || s.apps == nil {
		return errors.New("bunstore: all stores should be initialized")
	}
	return nil
}

func (s *Store) MustValidate() {
	if err := s.Validate(); err != nil {
		log.Panic(err)
	}
}

// RunInTx runs f inside a storage transaction
func (s *Store) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return s.db.RunInTx(ctx, opts, f)
	}
}

func (s *Store) Users() identity.UserStore { return s.users }

func (s *Store) Codes() identity.CodeStore { return s.codes }

func (s *Store) Sessions() identity.SessionStore { return s.sessions }

func (s *Store) RoleApplications() identity.RoleApplicationStore { return s.apps }

var _ identity.Stores = (*Store)(nil)

// isUniqueViolation detects the constraint-violation shape of the supported
// engines; the caller decides which business condition it represents.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
