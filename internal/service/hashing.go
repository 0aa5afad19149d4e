package service

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var digestPattern = regexp.MustCompile(`^[0-9A-Fa-f]{64}$`)

// HashingService is the one-way privacy boundary: every secret (GUID,
// registration token, TAN, TeleTAN) crosses it before touching storage.
type HashingService struct{}

// NewHashingService constructs the service.
func NewHashingService() *HashingService {
	return &HashingService{}
}

// Hash returns the SHA-256 digest of the input as lowercase hex.
func (h *HashingService) Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// IsWellFormedDigest reports whether s is structurally a SHA-256 hex digest.
// Used to reject malformed lookups before any storage access.
func (h *HashingService) IsWellFormedDigest(s string) bool {
	return digestPattern.MatchString(s)
}

// CheckDigit derives a single display character from the digest of the seed.
// 0 and 1 are substituted so the digit cannot be confused with O or I; it is
// never used for security decisions.
func (h *HashingService) CheckDigit(seed string) string {
	digit := strings.ToUpper(h.Hash(seed)[:1])
	digit = strings.ReplaceAll(digit, "0", "G")
	return strings.ReplaceAll(digit, "1", "H")
}
