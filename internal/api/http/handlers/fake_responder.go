package handlers

import (
	"math/rand"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/healthbridge/verification-service/internal/api/dto"
	"github.com/healthbridge/verification-service/internal/domain"
	"github.com/healthbridge/verification-service/internal/timing"
)

// FakeHeader flags a request as a decoy. Decoys receive a structurally valid
// but non-binding response whose latency matches genuine traffic.
const FakeHeader = "X-Verification-Fake"

// Padding lengths align the decoy body sizes with typical real responses.
const (
	tokenResponsePaddingLength      = 1
	tanResponsePaddingLength        = 15
	testResultResponsePaddingLength = 45
)

const alphanumerics = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// FakeResponder serves decoy responses. It never touches storage; the only
// work is a jittered sleep shaped like the endpoint class's real latency.
type FakeResponder struct {
	delays *timing.Equalizer
}

// NewFakeResponder constructs the responder.
func NewFakeResponder(delays *timing.Equalizer) *FakeResponder {
	return &FakeResponder{delays: delays}
}

// RegistrationToken writes a decoy token response.
func (f *FakeResponder) RegistrationToken(c *fiber.Ctx) error {
	timing.Pause(c.UserContext(), f.delays.JitteredDelay(timing.ClassToken))
	return c.Status(http.StatusCreated).JSON(dto.RegistrationTokenResponse{
		RegistrationToken: uuid.NewString(),
		ResponsePadding:   randAlphanumeric(tokenResponsePaddingLength),
	})
}

// Tan writes a decoy TAN response.
func (f *FakeResponder) Tan(c *fiber.Ctx) error {
	timing.Pause(c.UserContext(), f.delays.JitteredDelay(timing.ClassTan))
	return c.Status(http.StatusCreated).JSON(dto.TanResponse{
		Tan:             uuid.NewString(),
		ResponsePadding: randAlphanumeric(tanResponsePaddingLength),
	})
}

// TestResult writes a decoy test result response.
func (f *FakeResponder) TestResult(c *fiber.Ctx) error {
	timing.Pause(c.UserContext(), f.delays.JitteredDelay(timing.ClassTestResult))
	return c.JSON(domain.TestResult{
		TestResult:      domain.TestResultPositive,
		ResponsePadding: randAlphanumeric(testResultResponsePaddingLength),
	})
}

func isFake(c *fiber.Ctx) bool {
	return c.Get(FakeHeader) == "1"
}

func randAlphanumeric(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumerics[rand.Intn(len(alphanumerics))]
	}
	return string(b)
}
