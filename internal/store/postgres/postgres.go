package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
)

// Connect creates a pgx pool for dsn and verifies it with a ping.
// SQLAlchemy-style DSNs ("postgresql+asyncpg://") are accepted.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(NormalizeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	if cfg.MaxConns == 0 {
		cfg.MaxConns = 4
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}
	if cfg.HealthCheckPeriod == 0 {
		cfg.HealthCheckPeriod = time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// NormalizeDSN rewrites driver-suffixed schemes to plain postgres ones
func NormalizeDSN(dsn string) string {
	s := strings.TrimSpace(dsn)
	for _, prefix := range []string{"postgresql+asyncpg://", "postgresql+psycopg2://", "postgresql+pgx://"} {
		s = strings.Replace(s, prefix, "postgresql://", 1)
	}
	for _, prefix := range []string{"postgres+asyncpg://", "postgres+pgx://"} {
		s = strings.Replace(s, prefix, "postgres://", 1)
	}
	return s
}

// Querier is the subset of *pgxpool.Pool used here
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Querier = (*pgxpool.Pool)(nil)

const authenticateSQL = `
SELECT u.id::text,
       COALESCE(NULLIF(u.full_name, ''), u.email, u.id::text),
       u.is_active
FROM api_tokens t
JOIN users u ON u.id = t.user_id
WHERE t.token_hash = $1
  AND t.revoked_at IS NULL
  AND (t.expires_at IS NULL OR t.expires_at > now())`

// Authenticator looks tokens up in the application's api_tokens table.
// Only the SHA-256 of a token is stored.
type Authenticator struct {
	db Querier
}

// NewAuthenticator creates an Authenticator over db
func NewAuthenticator(db Querier) *Authenticator {
	return &Authenticator{db: db}
}

// Authenticate implements ws.Authenticator
func (a *Authenticator) Authenticate(ctx context.Context, token string) (domain.User, error) {
	var user domain.User
	err := a.db.QueryRow(ctx, authenticateSQL, HashToken(token)).Scan(&user.ID, &user.DisplayName, &user.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, fmt.Errorf("%w: unknown token", domain.ErrAuthRejected)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("postgres: authenticate: %w", err)
	}
	return user, nil
}

// HashToken returns the hex SHA-256 under which a token is stored
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// existsSQL holds one fixed query per room kind
var existsSQL = map[domain.RoomKind]string{
	domain.RoomKindTask:      `SELECT EXISTS (SELECT 1 FROM tasks WHERE id::text = $1 AND deleted_at IS NULL)`,
	domain.RoomKindWorkspace: `SELECT EXISTS (SELECT 1 FROM workspaces WHERE id::text = $1)`,
	domain.RoomKindTemplate:  `SELECT EXISTS (SELECT 1 FROM templates WHERE id::text = $1)`,
}

// Resolver checks that a room's backing entity exists
type Resolver struct {
	db Querier
}

// NewResolver creates a Resolver over db
func NewResolver(db Querier) *Resolver {
	return &Resolver{db: db}
}

// Exists implements ws.ResourceResolver
func (r *Resolver) Exists(ctx context.Context, room domain.RoomID) (bool, error) {
	query, ok := existsSQL[room.Kind]
	if !ok {
		return false, fmt.Errorf("%w: no table for kind %q", domain.ErrInvalidRoom, room.Kind)
	}

	var exists bool
	if err := r.db.QueryRow(ctx, query, room.ID).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: exists %s: %w", room, err)
	}
	return exists, nil
}
