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

// TokenHandler exposes registration token issuance.
type TokenHandler struct {
	sessions *service.SessionService
	fake     *FakeResponder
	delays   *timing.Equalizer
}

// NewTokenHandler constructs handler.
func NewTokenHandler(sessions *service.SessionService, fake *FakeResponder, delays *timing.Equalizer) *TokenHandler {
	return &TokenHandler{sessions: sessions, fake: fake, delays: delays}
}

// Create handles POST /version/v1/registrationToken.
func (h *TokenHandler) Create(c *fiber.Ctx) error {
	if isFake(c) {
		return h.fake.RegistrationToken(c)
	}
	start := time.Now()

	var req dto.RegistrationTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Key == "" {
		return apperrors.NewValidationError("key required", nil)
	}

	token, err := h.register(c, req)
	h.delays.RecordRealDuration(timing.ClassToken, time.Since(start))
	timing.Pause(c.UserContext(), h.delays.EqualizingDelay(timing.ClassToken))
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(dto.RegistrationTokenResponse{RegistrationToken: token})
}

func (h *TokenHandler) register(c *fiber.Ctx, req dto.RegistrationTokenRequest) (string, error) {
	switch req.KeyType {
	case dto.KeyTypeGuid:
		var keyDob *string
		if req.KeyDob != "" {
			keyDob = &req.KeyDob
		}
		return h.sessions.RegisterByGuid(c.UserContext(), req.Key, keyDob)
	case dto.KeyTypeTeleTan:
		if req.KeyDob != "" {
			return "", apperrors.NewValidationError("keyDob is only valid for GUID registration", nil)
		}
		return h.sessions.RegisterByTeleTan(c.UserContext(), req.Key)
	default:
		return "", apperrors.NewValidationError("unknown registration key type", nil)
	}
}
