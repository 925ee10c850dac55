package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
)

// tokenEntry is a token with the identity it grants
type tokenEntry struct {
	user      domain.User
	expiresAt time.Time // zero for static tokens
	lastUsed  time.Time
}

func (e *tokenEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryAuthenticator keeps tokens in memory. Used for local development and tests;
// production deployments authenticate against Postgres.
type MemoryAuthenticator struct {
	mu      sync.RWMutex
	tokens  map[string]*tokenEntry         // token -> entry
	userIDs map[string]map[string]struct{} // userID -> tokens, one per device
	ttl     time.Duration                  // lifetime of issued tokens; 0 means no expiry
	now     func() time.Time
}

// NewMemoryAuthenticator creates an empty store
func NewMemoryAuthenticator(ttl time.Duration) *MemoryAuthenticator {
	return &MemoryAuthenticator{
		tokens:  make(map[string]*tokenEntry),
		userIDs: make(map[string]map[string]struct{}),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Issue creates a new random token for user that expires after the store's TTL.
// Tokens the user already holds stay valid.
func (m *MemoryAuthenticator) Issue(user domain.User) string {
	tokenBytes := make([]byte, 32) // 256 bits
	rand.Read(tokenBytes)
	token := hex.EncodeToString(tokenBytes)

	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if m.ttl > 0 {
		expiresAt = m.now().Add(m.ttl)
	}
	m.addLocked(token, user, expiresAt)
	return token
}

// Add registers a static token for user. Static tokens never expire.
func (m *MemoryAuthenticator) Add(token string, user domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(token, user, time.Time{})
}

func (m *MemoryAuthenticator) addLocked(token string, user domain.User, expiresAt time.Time) {
	if old, exists := m.tokens[token]; exists {
		m.unindexLocked(old.user.ID, token)
	}

	m.tokens[token] = &tokenEntry{user: user, expiresAt: expiresAt, lastUsed: m.now()}
	if m.userIDs[user.ID] == nil {
		m.userIDs[user.ID] = make(map[string]struct{})
	}
	m.userIDs[user.ID][token] = struct{}{}
}

// Authenticate implements ws.Authenticator
func (m *MemoryAuthenticator) Authenticate(_ context.Context, token string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.tokens[token]
	if !exists {
		return domain.User{}, fmt.Errorf("%w: unknown token", domain.ErrAuthRejected)
	}

	now := m.now()
	if entry.expired(now) {
		m.removeLocked(token)
		return domain.User{}, fmt.Errorf("%w: token expired", domain.ErrAuthRejected)
	}

	entry.lastUsed = now
	return entry.user, nil
}

// Revoke removes a token and reports whether it existed
func (m *MemoryAuthenticator) Revoke(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.tokens[token]
	m.removeLocked(token)
	return exists
}

func (m *MemoryAuthenticator) removeLocked(token string) {
	if entry, exists := m.tokens[token]; exists {
		m.unindexLocked(entry.user.ID, token)
		delete(m.tokens, token)
	}
}

func (m *MemoryAuthenticator) unindexLocked(userID, token string) {
	delete(m.userIDs[userID], token)
	if len(m.userIDs[userID]) == 0 {
		delete(m.userIDs, userID)
	}
}

// Cleanup removes expired tokens and returns how many were dropped
func (m *MemoryAuthenticator) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for token, entry := range m.tokens {
		if entry.expired(now) {
			m.removeLocked(token)
			removed++
		}
	}
	return removed
}

// Start runs Cleanup every interval until ctx is done
func (m *MemoryAuthenticator) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Cleanup()
			}
		}
	}()
}

// Count returns the number of live tokens
func (m *MemoryAuthenticator) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}

// TokensFor returns how many tokens userID holds
func (m *MemoryAuthenticator) TokensFor(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.userIDs[userID])
}

// ParseDevTokens loads "token=user_id:Display Name" pairs separated by commas
func ParseDevTokens(m *MemoryAuthenticator, spec string) (int, error) {
	loaded := 0
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		token, identity, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(token) == "" {
			return loaded, fmt.Errorf("dev token %q: expected token=user_id[:name]", part)
		}
		userID, name, _ := strings.Cut(identity, ":")
		userID = strings.TrimSpace(userID)
		if userID == "" {
			return loaded, fmt.Errorf("dev token %q: missing user id", part)
		}

		m.Add(strings.TrimSpace(token), domain.NewUser(userID, strings.TrimSpace(name)))
		loaded++
	}
	return loaded, nil
}

// AllowAllResolver treats every room as existing. For development without a database.
type AllowAllResolver struct{}

// Exists implements ws.ResourceResolver
func (AllowAllResolver) Exists(context.Context, domain.RoomID) (bool, error) {
	return true, nil
}
