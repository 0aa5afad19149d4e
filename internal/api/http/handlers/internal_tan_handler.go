package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/healthbridge/verification-service/internal/api/dto"
	"github.com/healthbridge/verification-service/internal/domain"
	"github.com/healthbridge/verification-service/internal/service"
	apperrors "github.com/healthbridge/verification-service/pkg/util"
)

// TeleTanTypeHeader classifies a requested TeleTAN and reports the type of a
// redeemed one.
const TeleTanTypeHeader = "X-Verification-TeleTAN-Type"

// InternalTanHandler exposes the privileged verification and TeleTAN routes.
type InternalTanHandler struct {
	tans *service.TanService
}

// NewInternalTanHandler constructs handler.
func NewInternalTanHandler(tans *service.TanService) *InternalTanHandler {
	return &InternalTanHandler{tans: tans}
}

// Verify handles POST /version/v1/tan/verify.
func (h *InternalTanHandler) Verify(c *fiber.Ctx) error {
	var req dto.TanVerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Tan == "" {
		return apperrors.NewValidationError("tan required", nil)
	}

	redemption, err := h.tans.VerifyAndRedeem(c.UserContext(), req.Tan)
	if err != nil {
		return err
	}

	if redemption.TeleTanType != nil {
		c.Set(TeleTanTypeHeader, string(*redemption.TeleTanType))
	}
	return c.SendStatus(http.StatusOK)
}

// CreateTeleTan handles POST /version/v1/tan/teletan. The TeleTAN type comes
// from a header and defaults to TEST.
func (h *InternalTanHandler) CreateTeleTan(c *fiber.Ctx) error {
	teleTanType := domain.TeleTanTypeTest
	switch c.Get(TeleTanTypeHeader) {
	case "", string(domain.TeleTanTypeTest):
	case string(domain.TeleTanTypeEvent):
		teleTanType = domain.TeleTanTypeEvent
	default:
		return apperrors.NewValidationError("unknown teletan type", nil)
	}

	teleTan, err := h.tans.IssueTeleTan(c.UserContext(), c.Get(fiber.HeaderAuthorization), teleTanType)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(dto.TeleTanResponse{TeleTan: teleTan})
}
