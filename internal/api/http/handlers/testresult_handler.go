package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/healthbridge/verification-service/internal/api/dto"
	"github.com/healthbridge/verification-service/internal/domain"
	"github.com/healthbridge/verification-service/internal/oracle"
	"github.com/healthbridge/verification-service/internal/service"
	"github.com/healthbridge/verification-service/internal/timing"
	apperrors "github.com/healthbridge/verification-service/pkg/util"
)

// TestResultHandler exposes test result polling for registered sessions.
type TestResultHandler struct {
	sessions *service.SessionService
	resulter oracle.TestResulter
	fake     *FakeResponder
	delays   *timing.Equalizer
}

// NewTestResultHandler constructs handler.
func NewTestResultHandler(sessions *service.SessionService, resulter oracle.TestResulter, fake *FakeResponder, delays *timing.Equalizer) *TestResultHandler {
	return &TestResultHandler{sessions: sessions, resulter: resulter, fake: fake, delays: delays}
}

// Get handles POST /version/v1/testresult. A TeleTAN-bound session is always
// positive; a GUID-bound session asks the oracle, requiring agreement when a
// date-of-birth hash is also bound.
func (h *TestResultHandler) Get(c *fiber.Ctx) error {
	if isFake(c) {
		return h.fake.TestResult(c)
	}
	start := time.Now()

	var req dto.TanRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.RegistrationToken == "" {
		return apperrors.NewValidationError("registrationToken required", nil)
	}

	result, err := h.resolve(c, req.RegistrationToken)
	h.delays.RecordRealDuration(timing.ClassTestResult, time.Since(start))
	timing.Pause(c.UserContext(), h.delays.EqualizingDelay(timing.ClassTestResult))
	if err != nil {
		return err
	}

	return c.JSON(result)
}

func (h *TestResultHandler) resolve(c *fiber.Ctx, registrationToken string) (*domain.TestResult, error) {
	session, err := h.sessions.GetByToken(c.UserContext(), registrationToken)
	if err != nil {
		return nil, err
	}

	if session.SourceOfTrust == domain.SessionSourceTeleTan {
		return &domain.TestResult{TestResult: domain.TestResultPositive}, nil
	}

	result, err := h.resulter.Result(c.UserContext(), *session.HashedGuid)
	if err != nil {
		return nil, err
	}
	if session.HashedGuidDob != nil {
		dobResult, err := h.resulter.Result(c.UserContext(), *session.HashedGuidDob)
		if err != nil {
			return nil, err
		}
		if dobResult.TestResult != result.TestResult {
			return nil, apperrors.NewInconsistent("test results for the registration token disagree")
		}
	}
	result.ResponsePadding = ""
	return result, nil
}
