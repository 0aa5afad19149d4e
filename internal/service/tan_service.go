package service

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/healthbridge/verification-service/internal/auth"
	"github.com/healthbridge/verification-service/internal/config"
	"github.com/healthbridge/verification-service/internal/domain"
	"github.com/healthbridge/verification-service/internal/events"
	"github.com/healthbridge/verification-service/internal/oracle"
	"github.com/healthbridge/verification-service/internal/repository"
	"github.com/healthbridge/verification-service/internal/throttle"
	apperrors "github.com/healthbridge/verification-service/pkg/util"
)

// Redemption carries the metadata of a successful verify-and-redeem, used for
// informational response headers only.
type Redemption struct {
	TeleTanType *domain.TeleTanType
}

// TanService generates TAN and TeleTAN credentials, enforces their validity
// windows and performs exactly-once redemption.
type TanService struct {
	tans       repository.TanRepository
	sessions   *SessionService
	resulter   oracle.TestResulter
	authorizer auth.Authorizer
	throttle   throttle.Throttle
	hasher     *HashingService
	format     *Format
	dispatcher events.Dispatcher
	cfg        config.TanConfig
	logger     *zap.Logger
}

// TanDependencies encapsulates requirements for the TAN service.
type TanDependencies struct {
	TanRepo    repository.TanRepository
	Sessions   *SessionService
	Resulter   oracle.TestResulter
	Authorizer auth.Authorizer
	Throttle   throttle.Throttle
	Hasher     *HashingService
	Format     *Format
	Dispatcher events.Dispatcher
}

// NewTanService builds the service.
func NewTanService(cfg config.Config, deps TanDependencies, logger *zap.Logger) *TanService {
	return &TanService{
		tans:       deps.TanRepo,
		sessions:   deps.Sessions,
		resulter:   deps.Resulter,
		authorizer: deps.Authorizer,
		throttle:   deps.Throttle,
		hasher:     deps.Hasher,
		format:     deps.Format,
		dispatcher: deps.Dispatcher,
		cfg:        cfg.Tan,
		logger:     logger,
	}
}

// IssueTan issues a TAN for the session. Sessions bound to a hashed GUID are
// gated on a positive lab result; TeleTAN-bound sessions proceed without the
// oracle. The raw TAN value is returned exactly once.
func (s *TanService) IssueTan(ctx context.Context, session *domain.Session) (string, error) {
	if !session.CanIssueTan(s.sessions.CounterMax()) {
		return "", apperrors.NewLimitExceeded("maximum number of tans for this registration token reached")
	}

	sourceOfTrust := domain.TanSourceConnectedLab
	switch session.SourceOfTrust {
	case domain.SessionSourceHashedGuid:
		if err := s.requirePositiveResult(ctx, session); err != nil {
			return "", err
		}
	case domain.SessionSourceTeleTan:
		sourceOfTrust = domain.TanSourceTeleTan
	default:
		return "", apperrors.NewValidationError("unknown source of trust for the registration token", nil)
	}

	if err := s.sessions.IncrementTanCounter(ctx, session); err != nil {
		return "", err
	}

	tan, err := s.generateUnique(ctx, func() string { return uuid.NewString() })
	if err != nil {
		return "", err
	}

	now := time.Now()
	credential := &domain.Tan{
		TanHash:       s.hasher.Hash(tan),
		ValidFrom:     now,
		ValidUntil:    now.AddDate(0, 0, s.cfg.ValidDays),
		SourceOfTrust: sourceOfTrust,
		Type:          domain.TanTypeTan,
		TeleTanType:   session.TeleTanType,
	}
	if err := s.tans.Insert(ctx, credential); err != nil {
		return "", err
	}

	s.publish(ctx, events.TanIssued, map[string]string{"sourceOfTrust": string(sourceOfTrust)})
	return tan, nil
}

// requirePositiveResult asks the oracle for the session's result. With a
// date-of-birth hash bound, both results must agree exactly; a mismatch is a
// hard failure, not a negative result.
func (s *TanService) requirePositiveResult(ctx context.Context, session *domain.Session) error {
	result, err := s.resulter.Result(ctx, *session.HashedGuid)
	if err != nil {
		return err
	}
	if session.HashedGuidDob != nil {
		dobResult, err := s.resulter.Result(ctx, *session.HashedGuidDob)
		if err != nil {
			return err
		}
		if dobResult.TestResult != result.TestResult {
			s.logger.Warn("test results for guid and dob guid disagree")
			return apperrors.NewInconsistent("test results for the registration token disagree")
		}
	}
	if !domain.IsPositiveTestResult(result.TestResult) {
		return apperrors.NewInvalidCredential("tan cannot be created for the lab result", http.StatusBadRequest)
	}
	return nil
}

// IssueTeleTan creates a human-readable TeleTAN after the bearer credential
// and the rate limit admit it. The raw code is returned exactly once.
func (s *TanService) IssueTeleTan(ctx context.Context, authorizationHeader string, teleTanType domain.TeleTanType) (string, error) {
	requiredRole := auth.RoleHotline
	if teleTanType == domain.TeleTanTypeEvent {
		requiredRole = auth.RoleHotlineEvent
	}
	if !s.authorizer.IsAuthorized(authorizationHeader, []string{requiredRole}) {
		return "", apperrors.NewUnauthorized("bearer credential rejected")
	}

	admitted, err := s.throttle.Admit(ctx, teleTanType)
	if err != nil {
		return "", err
	}
	if !admitted {
		return "", apperrors.NewRateLimited("teletan rate limit exceeded, try again later")
	}

	teleTan, err := s.generateUnique(ctx, s.createTeleTan)
	if err != nil {
		return "", err
	}

	now := time.Now()
	validUntil := now.Add(time.Duration(s.cfg.TeleValidHours) * time.Hour)
	if teleTanType == domain.TeleTanTypeEvent {
		validUntil = now.AddDate(0, 0, s.cfg.TeleEventValidDays)
	}

	credential := &domain.Tan{
		TanHash:       s.hasher.Hash(teleTan),
		ValidFrom:     now,
		ValidUntil:    validUntil,
		SourceOfTrust: domain.TanSourceTeleTan,
		Type:          domain.TanTypeTeleTan,
		TeleTanType:   &teleTanType,
	}
	if err := s.tans.Insert(ctx, credential); err != nil {
		return "", err
	}

	s.publish(ctx, events.TeleTanIssued, map[string]string{"teleTanType": string(teleTanType)})
	return teleTan, nil
}

// VerifyAndRedeem checks the credential and flips it to redeemed exactly
// once. Unknown, expired, already-redeemed and concurrently-redeemed values
// all collapse into the same invalid outcome so the reason cannot be probed.
func (s *TanService) VerifyAndRedeem(ctx context.Context, rawValue string) (*Redemption, error) {
	if !s.format.IsTan(rawValue) && !s.format.IsTeleTan(rawValue) {
		return nil, apperrors.NewInvalidCredential("malformed tan", http.StatusBadRequest)
	}

	credential, err := s.tans.GetByHash(ctx, s.hasher.Hash(rawValue))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, invalidTan()
		}
		return nil, err
	}
	if !credential.CanBeRedeemed(time.Now()) {
		s.logger.Info("tan is unknown, expired or already redeemed")
		return nil, invalidTan()
	}

	if err := s.tans.Redeem(ctx, credential); err != nil {
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}
		// Lost a concurrent update; retry once against the fresh row.
		fresh, err := s.tans.GetByHash(ctx, credential.TanHash)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, invalidTan()
			}
			return nil, err
		}
		if !fresh.CanBeRedeemed(time.Now()) {
			return nil, invalidTan()
		}
		if err := s.tans.Redeem(ctx, fresh); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return nil, invalidTan()
			}
			return nil, err
		}
		credential = fresh
	}

	s.publish(ctx, events.TanRedeemed, map[string]string{"type": string(credential.Type)})
	return &Redemption{TeleTanType: credential.TeleTanType}, nil
}

func invalidTan() error {
	return apperrors.NewInvalidCredential("no tan found or tan is invalid", http.StatusNotFound)
}

// generateUnique draws fresh values until one is not yet stored. Collisions
// are overwhelmingly unlikely, so the loop effectively runs once.
func (s *TanService) generateUnique(ctx context.Context, create func() string) (string, error) {
	for {
		candidate := create()
		exists, err := s.tans.ExistsByHash(ctx, s.hasher.Hash(candidate))
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
}

// createTeleTan draws a fixed-length code from the confusable-free alphabet
// and appends the check digit.
func (s *TanService) createTeleTan() string {
	var b strings.Builder
	b.Grow(s.cfg.TeleLength + 1)
	alphabet := s.cfg.TeleChars
	alphabetLen := big.NewInt(int64(len(alphabet)))
	for i := 0; i < s.cfg.TeleLength; i++ {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			panic(err)
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	code := b.String()
	return code + s.hasher.CheckDigit(code)
}

func (s *TanService) publish(ctx context.Context, eventType events.EventType, payload map[string]string) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.New(eventType, payload))
}
