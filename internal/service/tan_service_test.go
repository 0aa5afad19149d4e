package service

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthbridge/verification-service/internal/auth"
	"github.com/healthbridge/verification-service/internal/domain"
)

func (f *serviceFixture) registerGuidSession(t *testing.T, guid string, resultCode int) *domain.Session {
	t.Helper()
	ctx := context.Background()

	guidHash := f.hasher.Hash(guid)
	f.resulter.results[guidHash] = resultCode

	token, err := f.sessions.RegisterByGuid(ctx, guidHash, nil)
	require.NoError(t, err)
	session, err := f.sessions.GetByToken(ctx, token)
	require.NoError(t, err)
	return session
}

func TestIssueTanForPositiveLabResult(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	session := f.registerGuidSession(t, "guid-a", domain.TestResultPositive)

	tan, err := f.tans.IssueTan(ctx, session)
	require.NoError(t, err)
	assert.True(t, f.format.IsTan(tan))
	assert.Equal(t, 1, session.TanCounter)

	stored, err := f.tanRepo.GetByHash(ctx, f.hasher.Hash(tan))
	require.NoError(t, err)
	assert.Equal(t, domain.TanTypeTan, stored.Type)
	assert.Equal(t, domain.TanSourceConnectedLab, stored.SourceOfTrust)
	assert.False(t, stored.Redeemed)
	assert.WithinDuration(t, stored.ValidFrom.AddDate(0, 0, 14), stored.ValidUntil, time.Second)
}

func TestIssueTanAcceptsQuickTestPositive(t *testing.T) {
	f := newServiceFixture(t)
	session := f.registerGuidSession(t, "guid-b", domain.TestResultQuickPositive)

	_, err := f.tans.IssueTan(context.Background(), session)
	require.NoError(t, err)
}

func TestIssueTanRejectsNonPositiveResults(t *testing.T) {
	for name, code := range map[string]int{
		"pending":  domain.TestResultPending,
		"negative": domain.TestResultNegative,
		"invalid":  domain.TestResultInvalid,
	} {
		t.Run(name, func(t *testing.T) {
			f := newServiceFixture(t)
			session := f.registerGuidSession(t, "guid-"+name, code)

			_, err := f.tans.IssueTan(context.Background(), session)
			requireDomainError(t, err, "INVALID_CREDENTIAL", http.StatusBadRequest)
			assert.Equal(t, 0, session.TanCounter)
		})
	}
}

func TestIssueTanSecondIssueExceedsLimit(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	session := f.registerGuidSession(t, "guid-c", domain.TestResultPositive)

	_, err := f.tans.IssueTan(ctx, session)
	require.NoError(t, err)

	_, err = f.tans.IssueTan(ctx, session)
	requireDomainError(t, err, "LIMIT_EXCEEDED", http.StatusBadRequest)
}

func TestIssueTanRequiresAgreeingDobResult(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	guidHash := f.hasher.Hash("guid-d")
	dobHash := f.hasher.Hash("guid-d-dob")
	f.resulter.results[guidHash] = domain.TestResultPositive
	f.resulter.results[dobHash] = domain.TestResultNegative

	token, err := f.sessions.RegisterByGuid(ctx, guidHash, &dobHash)
	require.NoError(t, err)
	session, err := f.sessions.GetByToken(ctx, token)
	require.NoError(t, err)

	_, err = f.tans.IssueTan(ctx, session)
	requireDomainError(t, err, "INCONSISTENT_RESULT", http.StatusForbidden)
	assert.Equal(t, 0, session.TanCounter)

	f.resulter.results[dobHash] = domain.TestResultPositive
	_, err = f.tans.IssueTan(ctx, session)
	require.NoError(t, err)
}

func TestIssueTanForTeleTanSessionSkipsLabResult(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	teleTan, err := f.tans.IssueTeleTan(ctx, "Bearer irrelevant", domain.TeleTanTypeEvent)
	require.NoError(t, err)
	token, err := f.sessions.RegisterByTeleTan(ctx, teleTan)
	require.NoError(t, err)
	session, err := f.sessions.GetByToken(ctx, token)
	require.NoError(t, err)

	tan, err := f.tans.IssueTan(ctx, session)
	require.NoError(t, err)
	assert.Zero(t, f.resulter.calls)

	stored, err := f.tanRepo.GetByHash(ctx, f.hasher.Hash(tan))
	require.NoError(t, err)
	assert.Equal(t, domain.TanSourceTeleTan, stored.SourceOfTrust)
	require.NotNil(t, stored.TeleTanType)
	assert.Equal(t, domain.TeleTanTypeEvent, *stored.TeleTanType)
}

func TestIssueTeleTanShape(t *testing.T) {
	f := newServiceFixture(t)

	teleTan, err := f.tans.IssueTeleTan(context.Background(), "Bearer irrelevant", domain.TeleTanTypeTest)
	require.NoError(t, err)

	require.Len(t, teleTan, 10)
	for _, r := range teleTan {
		assert.Contains(t, testConfig().Tan.TeleChars, string(r))
	}
	assert.Equal(t, f.hasher.CheckDigit(teleTan[:9]), string(teleTan[9]))
	assert.True(t, f.format.IsTeleTan(teleTan))
}

func TestIssueTeleTanValidityWindows(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	testTan, err := f.tans.IssueTeleTan(ctx, "Bearer irrelevant", domain.TeleTanTypeTest)
	require.NoError(t, err)
	stored, err := f.tanRepo.GetByHash(ctx, f.hasher.Hash(testTan))
	require.NoError(t, err)
	assert.WithinDuration(t, stored.ValidFrom.Add(time.Hour), stored.ValidUntil, time.Second)
	assert.Equal(t, domain.TanTypeTeleTan, stored.Type)

	eventTan, err := f.tans.IssueTeleTan(ctx, "Bearer irrelevant", domain.TeleTanTypeEvent)
	require.NoError(t, err)
	stored, err = f.tanRepo.GetByHash(ctx, f.hasher.Hash(eventTan))
	require.NoError(t, err)
	assert.WithinDuration(t, stored.ValidFrom.AddDate(0, 0, 2), stored.ValidUntil, time.Second)
}

func TestIssueTeleTanRequiresRoleMatchingType(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.tans.IssueTeleTan(ctx, "Bearer irrelevant", domain.TeleTanTypeTest)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.RoleHotline}, f.authorizer.requiredRoles)

	_, err = f.tans.IssueTeleTan(ctx, "Bearer irrelevant", domain.TeleTanTypeEvent)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.RoleHotlineEvent}, f.authorizer.requiredRoles)
}

func TestIssueTeleTanUnauthorized(t *testing.T) {
	f := newServiceFixture(t)
	f.authorizer.authorized = false

	_, err := f.tans.IssueTeleTan(context.Background(), "Bearer rejected", domain.TeleTanTypeTest)
	requireDomainError(t, err, "UNAUTHORIZED", http.StatusUnauthorized)
	assert.Zero(t, f.throttle.calls)
}

func TestIssueTeleTanRateLimited(t *testing.T) {
	f := newServiceFixture(t)
	f.throttle.admitted = false

	_, err := f.tans.IssueTeleTan(context.Background(), "Bearer irrelevant", domain.TeleTanTypeTest)
	requireDomainError(t, err, "RATE_LIMITED", http.StatusTooManyRequests)
	assert.Empty(t, f.tanRepo.tans)
}

func TestVerifyAndRedeemExactlyOnce(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	session := f.registerGuidSession(t, "guid-e", domain.TestResultPositive)

	tan, err := f.tans.IssueTan(ctx, session)
	require.NoError(t, err)

	redemption, err := f.tans.VerifyAndRedeem(ctx, tan)
	require.NoError(t, err)
	assert.Nil(t, redemption.TeleTanType)

	_, err = f.tans.VerifyAndRedeem(ctx, tan)
	requireDomainError(t, err, "INVALID_CREDENTIAL", http.StatusNotFound)
}

func TestVerifyAndRedeemReportsTeleTanType(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	teleTan, err := f.tans.IssueTeleTan(ctx, "Bearer irrelevant", domain.TeleTanTypeEvent)
	require.NoError(t, err)

	redemption, err := f.tans.VerifyAndRedeem(ctx, teleTan)
	require.NoError(t, err)
	require.NotNil(t, redemption.TeleTanType)
	assert.Equal(t, domain.TeleTanTypeEvent, *redemption.TeleTanType)
}

func TestVerifyAndRedeemRejectsMalformedValue(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.tans.VerifyAndRedeem(context.Background(), "definitely-not-a-tan")
	requireDomainError(t, err, "INVALID_CREDENTIAL", http.StatusBadRequest)
}

func TestVerifyAndRedeemCollapsesUnknownExpiredAndRedeemed(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	// Unknown but well formed.
	_, err := f.tans.VerifyAndRedeem(ctx, "ffffffff-ffff-4fff-8fff-ffffffffffff")
	requireDomainError(t, err, "INVALID_CREDENTIAL", http.StatusNotFound)

	// Expired.
	session := f.registerGuidSession(t, "guid-f", domain.TestResultPositive)
	tan, err := f.tans.IssueTan(ctx, session)
	require.NoError(t, err)
	stored := f.tanRepo.tans[f.hasher.Hash(tan)]
	stored.ValidUntil = stored.ValidFrom
	_, err = f.tans.VerifyAndRedeem(ctx, tan)
	requireDomainError(t, err, "INVALID_CREDENTIAL", http.StatusNotFound)
}

func TestVerifyAndRedeemConcurrentLoserSeesInvalid(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	session := f.registerGuidSession(t, "guid-g", domain.TestResultPositive)

	tan, err := f.tans.IssueTan(ctx, session)
	require.NoError(t, err)

	// The stored row flips to redeemed while this caller's update is in
	// flight; the retry observes the redeemed row and reports invalid.
	f.tanRepo.redeemConflictOnce = true
	_, err = f.tans.VerifyAndRedeem(ctx, tan)
	requireDomainError(t, err, "INVALID_CREDENTIAL", http.StatusNotFound)
}

func TestIssuedValuesAreSingleUseAcrossFlows(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	// A TeleTAN consumed by registration cannot also be redeemed directly.
	teleTan, err := f.tans.IssueTeleTan(ctx, "Bearer irrelevant", domain.TeleTanTypeTest)
	require.NoError(t, err)
	_, err = f.sessions.RegisterByTeleTan(ctx, teleTan)
	require.NoError(t, err)
	_, err = f.tans.VerifyAndRedeem(ctx, teleTan)
	requireDomainError(t, err, "INVALID_CREDENTIAL", http.StatusNotFound)
}

func TestTeleTanValuesAvoidConfusableAlphabet(t *testing.T) {
	f := newServiceFixture(t)

	for i := 0; i < 20; i++ {
		teleTan, err := f.tans.IssueTeleTan(context.Background(), "Bearer irrelevant", domain.TeleTanTypeTest)
		require.NoError(t, err)
		assert.False(t, strings.ContainsAny(teleTan, "01IOL"))
	}
}
