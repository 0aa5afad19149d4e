package domain

import "time"

// SessionSourceOfTrust classifies how a session proved its identity.
type SessionSourceOfTrust string

const (
	SessionSourceHashedGuid SessionSourceOfTrust = "HASHED_GUID"
	SessionSourceTeleTan    SessionSourceOfTrust = "TELETAN"
)

// Session binds a registration token to exactly one trust source. Only
// digests are ever stored; the raw token is handed out once at creation.
type Session struct {
	ID                    int64
	Version               int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
	HashedGuid            *string
	HashedGuidDob         *string
	RegistrationTokenHash string
	TeleTanHash           *string
	TanCounter            int
	SourceOfTrust         SessionSourceOfTrust
	TeleTanType           *TeleTanType
}

// CanIssueTan reports whether the session is still below the configured
// TAN issuance ceiling.
func (s *Session) CanIssueTan(counterMax int) bool {
	return s.TanCounter < counterMax
}
