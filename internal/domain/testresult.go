package domain

// Lab test result codes as reported by the result server. Codes 5 and above
// are the quick-test (antigen) variants of the first five.
const (
	TestResultPending       = 0
	TestResultNegative      = 1
	TestResultPositive      = 2
	TestResultInvalid       = 3
	TestResultRedeemed      = 4
	TestResultQuickPending  = 5
	TestResultQuickNegative = 6
	TestResultQuickPositive = 7
	TestResultQuickInvalid  = 8
	TestResultQuickRedeemed = 9
)

// IsPositiveTestResult reports whether a result code authorizes TAN issuance.
// Only a positive outcome does, in either the standard or quick-test variant.
func IsPositiveTestResult(code int) bool {
	return code == TestResultPositive || code == TestResultQuickPositive
}

// TestResult is the oracle's answer for a hashed identifier.
type TestResult struct {
	TestResult      int     `json:"testResult"`
	SC              *int64  `json:"sc,omitempty"`
	LabID           *string `json:"labId,omitempty"`
	ResponsePadding string  `json:"responsePadding,omitempty"`
}
