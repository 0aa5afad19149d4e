package dto

// Registration key types accepted by the token endpoint.
const (
	KeyTypeGuid    = "GUID"
	KeyTypeTeleTan = "TELETAN"
)

// RegistrationTokenRequest carries the trust source for a new session. Key is
// a SHA-256 hashed GUID or a raw TeleTAN, depending on KeyType; KeyDob is the
// optional date-of-birth variant of the hashed GUID.
type RegistrationTokenRequest struct {
	Key     string `json:"key"`
	KeyType string `json:"keyType"`
	KeyDob  string `json:"keyDob,omitempty"`
}

// RegistrationTokenResponse returns the raw token exactly once.
type RegistrationTokenResponse struct {
	RegistrationToken string `json:"registrationToken"`
	ResponsePadding   string `json:"responsePadding,omitempty"`
}

// TanRequest identifies the session requesting a TAN.
type TanRequest struct {
	RegistrationToken string `json:"registrationToken"`
}

// TanResponse returns the raw TAN exactly once.
type TanResponse struct {
	Tan             string `json:"tan"`
	ResponsePadding string `json:"responsePadding,omitempty"`
}

// TanVerifyRequest carries the TAN or TeleTAN to redeem.
type TanVerifyRequest struct {
	Tan string `json:"tan"`
}

// TeleTanResponse returns the raw TeleTAN exactly once.
type TeleTanResponse struct {
	TeleTan string `json:"teleTan"`
}
