package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/healthbridge/verification-service/internal/config"
	"github.com/healthbridge/verification-service/internal/domain"
	"github.com/healthbridge/verification-service/internal/events"
	"github.com/healthbridge/verification-service/internal/repository"
	apperrors "github.com/healthbridge/verification-service/pkg/util"
)

// SessionService creates and resolves registration sessions. A raw
// registration token leaves this service exactly once, at creation; only its
// digest is ever stored or compared afterwards.
type SessionService struct {
	sessions   repository.SessionRepository
	tans       repository.TanRepository
	hasher     *HashingService
	format     *Format
	dispatcher events.Dispatcher
	counterMax int
	logger     *zap.Logger
}

// SessionDependencies encapsulates requirements for the session service.
type SessionDependencies struct {
	SessionRepo repository.SessionRepository
	TanRepo     repository.TanRepository
	Hasher      *HashingService
	Format      *Format
	Dispatcher  events.Dispatcher
}

// NewSessionService builds the service.
func NewSessionService(cfg config.Config, deps SessionDependencies, logger *zap.Logger) *SessionService {
	return &SessionService{
		sessions:   deps.SessionRepo,
		tans:       deps.TanRepo,
		hasher:     deps.Hasher,
		format:     deps.Format,
		dispatcher: deps.Dispatcher,
		counterMax: cfg.Session.TanCounterMax,
		logger:     logger,
	}
}

// RegisterByGuid binds one (or two, with the date-of-birth variant) identity
// digests to a fresh session and returns the raw registration token. An
// identity already bound to a live session yields a conflict.
func (s *SessionService) RegisterByGuid(ctx context.Context, hashedGuid string, hashedGuidDob *string) (string, error) {
	if !s.hasher.IsWellFormedDigest(hashedGuid) {
		return "", apperrors.NewValidationError("hashed guid has no valid pattern", nil)
	}
	identityHashes := []string{hashedGuid}
	if hashedGuidDob != nil {
		if !s.hasher.IsWellFormedDigest(*hashedGuidDob) {
			return "", apperrors.NewValidationError("hashed dob guid has no valid pattern", nil)
		}
		identityHashes = append(identityHashes, *hashedGuidDob)
	}

	exists, err := s.sessions.ExistsByIdentityHashes(ctx, identityHashes)
	if err != nil {
		return "", err
	}
	if exists {
		s.logger.Warn("registration token already exists for the hashed guid")
		return "", apperrors.NewConflict("identity already bound to a registration token")
	}

	token := uuid.NewString()
	session := &domain.Session{
		RegistrationTokenHash: s.hasher.Hash(token),
		HashedGuid:            &hashedGuid,
		HashedGuidDob:         hashedGuidDob,
		SourceOfTrust:         domain.SessionSourceHashedGuid,
	}
	if err := s.insert(ctx, session); err != nil {
		return "", err
	}
	return token, nil
}

// RegisterByTeleTan redeems a valid TeleTAN and binds its digest to a fresh
// session. The redeem happens before the session insert, so under concurrent
// registration attempts with the same TeleTAN exactly one caller wins.
func (s *SessionService) RegisterByTeleTan(ctx context.Context, teleTan string) (string, error) {
	if !s.format.IsTeleTan(teleTan) {
		s.logger.Warn("teletan does not satisfy the syntax constraints")
		return "", apperrors.NewInvalidCredential("teletan verification failed", http.StatusBadRequest)
	}

	teleTanHash := s.hasher.Hash(teleTan)
	credential, err := s.tans.GetByHash(ctx, teleTanHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.NewInvalidCredential("teletan verification failed", http.StatusBadRequest)
		}
		return "", err
	}
	if credential.Type != domain.TanTypeTeleTan || !credential.CanBeRedeemed(time.Now()) {
		s.logger.Warn("teletan is unknown, expired or already redeemed")
		return "", apperrors.NewInvalidCredential("teletan verification failed", http.StatusBadRequest)
	}

	if err := s.tans.Redeem(ctx, credential); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return "", apperrors.NewInvalidCredential("teletan verification failed", http.StatusBadRequest)
		}
		return "", err
	}

	token := uuid.NewString()
	session := &domain.Session{
		RegistrationTokenHash: s.hasher.Hash(token),
		TeleTanHash:           &teleTanHash,
		SourceOfTrust:         domain.SessionSourceTeleTan,
		TeleTanType:           credential.TeleTanType,
	}
	if err := s.insert(ctx, session); err != nil {
		return "", err
	}
	return token, nil
}

func (s *SessionService) insert(ctx context.Context, session *domain.Session) error {
	if err := s.sessions.Insert(ctx, session); err != nil {
		if repository.IsUniqueViolation(err) {
			return apperrors.NewConflict("identity already bound to a registration token")
		}
		return err
	}
	s.publish(ctx, events.SessionRegistered, map[string]string{
		"sourceOfTrust": string(session.SourceOfTrust),
	})
	return nil
}

// GetByToken resolves a raw registration token to its session.
func (s *SessionService) GetByToken(ctx context.Context, rawToken string) (*domain.Session, error) {
	session, err := s.sessions.GetByTokenHash(ctx, s.hasher.Hash(rawToken))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewInvalidCredential("registration token not found", http.StatusBadRequest)
		}
		return nil, err
	}
	return session, nil
}

// IncrementTanCounter bumps the session counter, retrying once when a
// concurrent increment got there first. The configured maximum is re-checked
// after a lost race so the ceiling holds regardless of interleaving.
func (s *SessionService) IncrementTanCounter(ctx context.Context, session *domain.Session) error {
	if !session.CanIssueTan(s.counterMax) {
		return apperrors.NewLimitExceeded("maximum number of tans for this registration token reached")
	}

	err := s.sessions.IncrementTanCounter(ctx, session)
	if !errors.Is(err, repository.ErrVersionConflict) {
		return err
	}

	fresh, err := s.sessions.GetByTokenHash(ctx, session.RegistrationTokenHash)
	if err != nil {
		return err
	}
	*session = *fresh
	if !session.CanIssueTan(s.counterMax) {
		return apperrors.NewLimitExceeded("maximum number of tans for this registration token reached")
	}
	if err := s.sessions.IncrementTanCounter(ctx, session); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return apperrors.NewConflict("concurrent tan issuance for this registration token")
		}
		return err
	}
	return nil
}

// CounterMax exposes the configured per-session issuance ceiling.
func (s *SessionService) CounterMax() int {
	return s.counterMax
}

func (s *SessionService) publish(ctx context.Context, eventType events.EventType, payload map[string]string) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.New(eventType, payload))
}
