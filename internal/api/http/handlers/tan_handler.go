package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/healthbridge/verification-service/internal/api/dto"
	"github.com/healthbridge/verification-service/internal/service"
	"github.com/healthbridge/verification-service/internal/timing"
	apperrors "github.com/healthbridge/verification-service/pkg/util"
)

// TanHandler exposes TAN issuance for registered sessions.
type TanHandler struct {
	sessions *service.SessionService
	tans     *service.TanService
	fake     *FakeResponder
	delays   *timing.Equalizer
}

// NewTanHandler constructs handler.
func NewTanHandler(sessions *service.SessionService, tans *service.TanService, fake *FakeResponder, delays *timing.Equalizer) *TanHandler {
	return &TanHandler{sessions: sessions, tans: tans, fake: fake, delays: delays}
}

// Create handles POST /version/v1/tan.
func (h *TanHandler) Create(c *fiber.Ctx) error {
	if isFake(c) {
		return h.fake.Tan(c)
	}
	start := time.Now()

	var req dto.TanRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.RegistrationToken == "" {
		return apperrors.NewValidationError("registrationToken required", nil)
	}

	tan, err := h.issue(c, req.RegistrationToken)
	h.delays.RecordRealDuration(timing.ClassTan, time.Since(start))
	timing.Pause(c.UserContext(), h.delays.EqualizingDelay(timing.ClassTan))
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(dto.TanResponse{Tan: tan})
}

func (h *TanHandler) issue(c *fiber.Ctx, registrationToken string) (string, error) {
	session, err := h.sessions.GetByToken(c.UserContext(), registrationToken)
	if err != nil {
		return "", err
	}
	return h.tans.IssueTan(c.UserContext(), session)
}
