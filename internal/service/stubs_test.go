package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/healthbridge/verification-service/internal/config"
	"github.com/healthbridge/verification-service/internal/domain"
	"github.com/healthbridge/verification-service/internal/repository"
	apperrors "github.com/healthbridge/verification-service/pkg/util"
)

func testConfig() config.Config {
	return config.Config{
		Session: config.SessionConfig{TanCounterMax: 1},
		Tan: config.TanConfig{
			ValidDays:            14,
			TeleValidHours:       1,
			TeleEventValidDays:   2,
			TeleChars:            "23456789ABCDEFGHJKMNPQRSTUVWXYZ",
			TeleLength:           9,
			TeleRateLimitCount:   1000,
			TeleRateLimitSeconds: 3600,
			TeleRateWarnPercent:  80,
		},
	}
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505"}
}

// memSessionRepo is an in-memory SessionRepository that mirrors the
// concurrency behavior of the SQL implementation, including unique
// violations and optimistic version checks.
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	nextID   int64

	// conflictOnce makes the next IncrementTanCounter lose its version check.
	conflictOnce bool
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (r *memSessionRepo) Insert(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.RegistrationTokenHash]; ok {
		return uniqueViolation()
	}
	for _, stored := range r.sessions {
		if session.HashedGuid != nil && stored.HashedGuid != nil && *session.HashedGuid == *stored.HashedGuid {
			return uniqueViolation()
		}
		if session.HashedGuidDob != nil && stored.HashedGuidDob != nil && *session.HashedGuidDob == *stored.HashedGuidDob {
			return uniqueViolation()
		}
		if session.TeleTanHash != nil && stored.TeleTanHash != nil && *session.TeleTanHash == *stored.TeleTanHash {
			return uniqueViolation()
		}
	}

	r.nextID++
	session.ID = r.nextID
	session.Version = 0
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt

	stored := *session
	r.sessions[session.RegistrationTokenHash] = &stored
	return nil
}

func (r *memSessionRepo) GetByTokenHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[tokenHash]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (r *memSessionRepo) ExistsByIdentityHashes(_ context.Context, hashes []string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, stored := range r.sessions {
		for _, hash := range hashes {
			if stored.HashedGuid != nil && *stored.HashedGuid == hash {
				return true, nil
			}
			if stored.HashedGuidDob != nil && *stored.HashedGuidDob == hash {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *memSessionRepo) IncrementTanCounter(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conflictOnce {
		r.conflictOnce = false
		return repository.ErrVersionConflict
	}

	stored, ok := r.sessions[session.RegistrationTokenHash]
	if !ok || stored.Version != session.Version {
		return repository.ErrVersionConflict
	}
	stored.TanCounter++
	stored.Version++
	session.TanCounter++
	session.Version++
	return nil
}

func (r *memSessionRepo) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for key, stored := range r.sessions {
		if stored.CreatedAt.Before(cutoff) {
			delete(r.sessions, key)
			deleted++
		}
	}
	return deleted, nil
}

// memTanRepo is the in-memory TanRepository counterpart.
type memTanRepo struct {
	mu     sync.Mutex
	tans   map[string]*domain.Tan
	nextID int64

	// redeemConflictOnce makes the next Redeem lose the race; the stored row
	// is flipped as if a concurrent winner got there first.
	redeemConflictOnce bool
}

func newMemTanRepo() *memTanRepo {
	return &memTanRepo{tans: make(map[string]*domain.Tan)}
}

func (r *memTanRepo) Insert(_ context.Context, tan *domain.Tan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tans[tan.TanHash]; ok {
		return uniqueViolation()
	}

	r.nextID++
	tan.ID = r.nextID
	tan.Version = 0
	tan.CreatedAt = time.Now()
	tan.UpdatedAt = tan.CreatedAt

	stored := *tan
	r.tans[tan.TanHash] = &stored
	return nil
}

func (r *memTanRepo) GetByHash(_ context.Context, tanHash string) (*domain.Tan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tans[tanHash]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (r *memTanRepo) ExistsByHash(_ context.Context, tanHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.tans[tanHash]
	return ok, nil
}

func (r *memTanRepo) Redeem(_ context.Context, tan *domain.Tan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tans[tan.TanHash]
	if !ok {
		return repository.ErrVersionConflict
	}

	if r.redeemConflictOnce {
		r.redeemConflictOnce = false
		stored.Redeemed = true
		stored.Version++
		return repository.ErrVersionConflict
	}

	if stored.Version != tan.Version || stored.Redeemed {
		return repository.ErrVersionConflict
	}
	stored.Redeemed = true
	stored.Version++
	tan.Redeemed = true
	tan.Version++
	return nil
}

func (r *memTanRepo) CountByTypeCreatedAfter(_ context.Context, tanType domain.TanType, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, stored := range r.tans {
		if stored.Type == tanType && stored.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (r *memTanRepo) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for key, stored := range r.tans {
		if stored.CreatedAt.Before(cutoff) {
			delete(r.tans, key)
			deleted++
		}
	}
	return deleted, nil
}

// stubResulter answers from a fixed table and counts lookups.
type stubResulter struct {
	results map[string]int
	err     error
	calls   int
}

func (s *stubResulter) Result(_ context.Context, hashedGuid string) (*domain.TestResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	code, ok := s.results[hashedGuid]
	if !ok {
		code = domain.TestResultPending
	}
	return &domain.TestResult{TestResult: code}, nil
}

type stubThrottle struct {
	admitted bool
	err      error
	calls    int
}

func (s *stubThrottle) Admit(_ context.Context, _ domain.TeleTanType) (bool, error) {
	s.calls++
	return s.admitted, s.err
}

type stubAuthorizer struct {
	authorized    bool
	requiredRoles []string
}

func (s *stubAuthorizer) IsAuthorized(_ string, requiredRoles []string) bool {
	s.requiredRoles = requiredRoles
	return s.authorized
}

type serviceFixture struct {
	sessions    *SessionService
	tans        *TanService
	sessionRepo *memSessionRepo
	tanRepo     *memTanRepo
	resulter    *stubResulter
	throttle    *stubThrottle
	authorizer  *stubAuthorizer
	hasher      *HashingService
	format      *Format
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	cfg := testConfig()
	logger := zap.NewNop()

	f := &serviceFixture{
		sessionRepo: newMemSessionRepo(),
		tanRepo:     newMemTanRepo(),
		resulter:    &stubResulter{results: make(map[string]int)},
		throttle:    &stubThrottle{admitted: true},
		authorizer:  &stubAuthorizer{authorized: true},
		hasher:      NewHashingService(),
		format:      NewFormat(cfg.Tan),
	}
	f.sessions = NewSessionService(cfg, SessionDependencies{
		SessionRepo: f.sessionRepo,
		TanRepo:     f.tanRepo,
		Hasher:      f.hasher,
		Format:      f.format,
	}, logger)
	f.tans = NewTanService(cfg, TanDependencies{
		TanRepo:    f.tanRepo,
		Sessions:   f.sessions,
		Resulter:   f.resulter,
		Authorizer: f.authorizer,
		Throttle:   f.throttle,
		Hasher:     f.hasher,
		Format:     f.format,
	}, logger)
	return f
}

func requireDomainError(t *testing.T, err error, code string, status int) {
	t.Helper()

	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, code, domainErr.Code)
	assert.Equal(t, status, domainErr.HTTPStatus)
}
