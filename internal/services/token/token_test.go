package token_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/carnetapp/carnetd/internal/repository"
	"github.com/carnetapp/carnetd/internal/services/token"
	"github.com/carnetapp/carnetd/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move time explicitly.
type fakeClock struct {
	current time.Time
}

func newFakeClock(unix int64) *fakeClock {
	return &fakeClock{current: time.Unix(unix, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newService(t *testing.T) (*token.Service, *repository.Repository, *fakeClock) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	clock := newFakeClock(1000)
	svc := token.NewService(repo, token.WithClock(clock.Now))
	return svc, repo, clock
}

func TestHashPayload_Deterministic(t *testing.T) {
	h1 := token.HashPayload("QR-1-1000-abc")
	h2 := token.HashPayload("QR-1-1000-abc")

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, token.HashPayload("QR-1-1000-abd"))
}

func TestIssuePermanent(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice")

	tok, err := svc.IssuePermanent(ctx, user.ID)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tok.Payload, fmt.Sprintf("QR-%d-", user.ID)))
	assert.Equal(t, token.HashPayload(tok.Payload), tok.PayloadHash)
	assert.True(t, tok.Active)

	// Payload ends in 32 hex chars from 16 random bytes.
	parts := strings.Split(tok.Payload, "-")
	assert.Len(t, parts[len(parts)-1], 32)
}

func TestIssuePermanent_Idempotent(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice")

	first, err := svc.IssuePermanent(ctx, user.ID)
	require.NoError(t, err)

	second, err := svc.IssuePermanent(ctx, user.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Payload, second.Payload)
}

func TestIssuePermanent_AfterRevokeIssuesNew(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice")

	first, err := svc.IssuePermanent(ctx, user.ID)
	require.NoError(t, err)

	count, err := svc.Revoke(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	second, err := svc.IssuePermanent(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.Payload, second.Payload)
}

func TestIssuePermanent_ExplicitPayload(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice")

	tok, err := svc.IssuePermanent(ctx, user.ID, "QR-custom-payload")

	require.NoError(t, err)
	assert.Equal(t, "QR-custom-payload", tok.Payload)
	assert.Equal(t, token.HashPayload("QR-custom-payload"), tok.PayloadHash)
}

func TestIssuePermanent_ExplicitPayloadCollisionFails(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	alice := testutil.NewTestUser(t, repo, "alice")
	bob := testutil.NewTestUser(t, repo, "bob")

	_, err := svc.IssuePermanent(ctx, alice.ID, "QR-custom-payload")
	require.NoError(t, err)

	// An explicit payload is never regenerated, so the collision surfaces.
	_, err = svc.IssuePermanent(ctx, bob.ID, "QR-custom-payload")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice")
	issued, err := svc.IssuePermanent(ctx, user.ID)
	require.NoError(t, err)

	tok, err := svc.Validate(ctx, issued.Payload)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, tok.ID)

	// Validation has no side effects: a second lookup still succeeds.
	_, err = svc.Validate(ctx, issued.Payload)
	require.NoError(t, err)
}

func TestValidate_UnknownPayload(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Validate(context.Background(), "QR-1-1000-ffff")

	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestValidate_RevokedPayload(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice")
	issued, err := svc.IssuePermanent(ctx, user.ID)
	require.NoError(t, err)

	_, err = svc.Revoke(ctx, user.ID)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, issued.Payload)
	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestIssueEphemeral_PayloadFormat(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice")

	payload, err := svc.IssueEphemeral(ctx, user.ID)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(payload, "LOGIN|"))
	assert.Contains(t, payload, "USR=alice")
	assert.Contains(t, payload, "PWDH="+testutil.TestPasswordHash)
	assert.Contains(t, payload, "TS=1000")

	// 16 hex chars from 8 random bytes.
	segments := strings.Split(payload, "|")
	nonce := strings.TrimPrefix(segments[len(segments)-1], "NONCE=")
	assert.Len(t, nonce, 16)
}

func TestIssueEphemeral_UnknownUser(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.IssueEphemeral(context.Background(), 9999)

	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestIssueEphemeral_DeactivatedUser(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice")
	require.NoError(t, repo.DeactivateUser(ctx, user.ID))

	_, err := svc.IssueEphemeral(ctx, user.ID)

	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestIssueEphemeral_DoesNotInvalidatePrevious(t *testing.T) {
	svc, repo, clock := newService(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice")

	first, err := svc.IssueEphemeral(ctx, user.ID)
	require.NoError(t, err)

	second, err := svc.IssueEphemeral(ctx, user.ID)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	// Both tokens consume independently.
	clock.Advance(10 * time.Second)
	_, err = svc.TryConsumeEphemeral(ctx, first)
	require.NoError(t, err)
	_, err = svc.TryConsumeEphemeral(ctx, second)
	require.NoError(t, err)
}

func TestTryConsumeEphemeral_SucceedsExactlyOnce(t *testing.T) {
	svc, repo, clock := newService(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice")
	payload, err := svc.IssueEphemeral(ctx, user.ID)
	require.NoError(t, err)

	clock.Advance(60 * time.Second)
	consumed, err := svc.TryConsumeEphemeral(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, user.ID, consumed.ID)

	clock.Advance(time.Second)
	_, err = svc.TryConsumeEphemeral(ctx, payload)
	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestTryConsumeEphemeral_AgeBounds(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		wantErr bool
	}{
		{"age zero", 0, false},
		{"within max age", 120 * time.Second, false},
		{"just past max age", 121 * time.Second, true},
		{"future timestamp", -1 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, clock := newService(t)
			ctx := context.Background()

			user := testutil.NewTestUser(t, repo, "alice")
			payload, err := svc.IssueEphemeral(ctx, user.ID)
			require.NoError(t, err)

			clock.Advance(tt.advance)
			_, err = svc.TryConsumeEphemeral(ctx, payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, token.ErrNotFound)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTryConsumeEphemeral_PasswordChangeInvalidates(t *testing.T) {
	svc, repo, clock := newService(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice")
	payload, err := svc.IssueEphemeral(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, repo.UpdateUserPassword(ctx, user.ID, "different-hash"))

	// Still within the age bound, but the embedded hash no longer matches.
	clock.Advance(10 * time.Second)
	_, err = svc.TryConsumeEphemeral(ctx, payload)
	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestTryConsumeEphemeral_DeactivatedOwner(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice")
	payload, err := svc.IssueEphemeral(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, repo.DeactivateUser(ctx, user.ID))

	_, err = svc.TryConsumeEphemeral(ctx, payload)
	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestTryConsumeEphemeral_WrongPrefix(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.TryConsumeEphemeral(context.Background(), "QR-1-1000-abcd")

	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestTryConsumeEphemeral_NotForLoginUse(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	// A permanent carnet payload must never log a user in.
	user := testutil.NewTestUser(t, repo, "alice")
	tok, err := svc.IssuePermanent(ctx, user.ID)
	require.NoError(t, err)

	_, err = svc.TryConsumeEphemeral(ctx, tok.Payload)
	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestTryConsumeEphemeral_UsernameCaseInsensitive(t *testing.T) {
	svc, repo, clock := newService(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "Alice")
	payload, err := svc.IssueEphemeral(ctx, user.ID)
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	consumed, err := svc.TryConsumeEphemeral(ctx, payload)

	require.NoError(t, err)
	assert.Equal(t, user.ID, consumed.ID)
}

func TestRevoke_CountsAllActiveTokens(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice")

	_, err := svc.IssuePermanent(ctx, user.ID)
	require.NoError(t, err)
	_, err = svc.IssueEphemeral(ctx, user.ID)
	require.NoError(t, err)

	count, err := svc.Revoke(ctx, user.ID)

	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRevoke_NoTokensIsNotAnError(t *testing.T) {
	svc, repo, _ := newService(t)

	user := testutil.NewTestUser(t, repo, "alice")

	count, err := svc.Revoke(context.Background(), user.ID)

	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEndToEnd_LoginScenario(t *testing.T) {
	// Issue for alice at TS=1000, present at 1060: success, row inactive.
	// Present the same payload again at 1061: rejected.
	svc, repo, clock := newService(t)
	ctx := context.Background()

	alice := testutil.NewTestUser(t, repo, "alice")
	payload, err := svc.IssueEphemeral(ctx, alice.ID)
	require.NoError(t, err)
	assert.Contains(t, payload, "TS=1000")

	clock.Advance(60 * time.Second)
	user, err := svc.TryConsumeEphemeral(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	remaining, err := repo.CountActiveQRTokens(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	clock.Advance(time.Second)
	_, err = svc.TryConsumeEphemeral(ctx, payload)
	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestEndToEnd_ExpiryScenario(t *testing.T) {
	// Issue at TS=1000, present at 1121 (121s later, max age 120s): rejected.
	svc, repo, clock := newService(t)
	ctx := context.Background()

	alice := testutil.NewTestUser(t, repo, "alice")
	payload, err := svc.IssueEphemeral(ctx, alice.ID)
	require.NoError(t, err)

	clock.Advance(121 * time.Second)
	_, err = svc.TryConsumeEphemeral(ctx, payload)
	assert.ErrorIs(t, err, token.ErrNotFound)
}
