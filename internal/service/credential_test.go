package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/voicegate/stt-gateway-api/internal/config"
	"github.com/voicegate/stt-gateway-api/internal/domain/apikey"
	"github.com/voicegate/stt-gateway-api/internal/domain/usage"
	"github.com/voicegate/stt-gateway-api/internal/domain/user"
	"github.com/voicegate/stt-gateway-api/internal/ierr"
	"github.com/voicegate/stt-gateway-api/internal/storage/memstorage"
)

func newCredentialFixture(t *testing.T) (*CredentialService, *memstorage.UserRepository) {
	t.Helper()
	users := memstorage.NewUserRepository()
	svc := NewCredentialService(
		memstorage.NewAPIKeyRepository(),
		users,
		memstorage.NewUsageRepository(),
		config.JWTConfig{Secret: "test-secret", Issuer: "stt-gateway", Validity: 24 * time.Hour},
		zap.NewNop(),
	)
	return svc, users
}

func seedUser(t *testing.T, users *memstorage.UserRepository, userID, password string, active bool) *user.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := &user.User{
		UserID:       userID,
		Email:        userID + "@example.com",
		UserType:     user.TypePersonal,
		PasswordHash: string(hashed),
		IsActive:     active,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func TestIssueKey(t *testing.T) {
	svc, _ := newCredentialFixture(t)
	ctx := context.Background()

	t.Run("issues a key in the vg format", func(t *testing.T) {
		issued, err := svc.IssueKey(ctx, "owner-1", "ci-pipeline", "CI transcriptions")
		require.NoError(t, err)

		parts := strings.SplitN(issued.PlaintextKey, "_", 3)
		require.Len(t, parts, 3)
		assert.Equal(t, "vg", parts[0])
		assert.Equal(t, issued.Key.Prefix, parts[1])
		assert.Equal(t, apikey.StatusActive, issued.Key.Status)
		assert.NotContains(t, issued.Key.KeyHash, parts[2])
	})

	t.Run("rejects a duplicate label for the same owner", func(t *testing.T) {
		_, err := svc.IssueKey(ctx, "owner-1", "ci-pipeline", "")
		assert.ErrorIs(t, err, ierr.ErrDuplicateLabel)
	})

	t.Run("allows the same label for a different owner", func(t *testing.T) {
		_, err := svc.IssueKey(ctx, "owner-2", "ci-pipeline", "")
		assert.NoError(t, err)
	})

	t.Run("rejects malformed labels", func(t *testing.T) {
		_, err := svc.IssueKey(ctx, "owner-1", "a b", "")
		assert.ErrorIs(t, err, ierr.ErrValidation)

		_, err = svc.IssueKey(ctx, "owner-1", "ab", "")
		assert.ErrorIs(t, err, ierr.ErrValidation)
	})

	t.Run("rejects oversized descriptions", func(t *testing.T) {
		_, err := svc.IssueKey(ctx, "owner-1", "fresh-label", strings.Repeat("x", maxDescriptionLength+1))
		assert.ErrorIs(t, err, ierr.ErrValidation)
	})
}

func TestVerifyKey(t *testing.T) {
	svc, _ := newCredentialFixture(t)
	ctx := context.Background()

	issued, err := svc.IssueKey(ctx, "owner-1", "primary", "")
	require.NoError(t, err)

	t.Run("accepts the issued plaintext and bumps usage", func(t *testing.T) {
		key, err := svc.VerifyKey(ctx, issued.PlaintextKey)
		require.NoError(t, err)
		assert.Equal(t, "owner-1", key.UserUUID)

		again, err := svc.VerifyKey(ctx, issued.PlaintextKey)
		require.NoError(t, err)
		assert.Equal(t, key.UsageCount+1, again.UsageCount)
		assert.NotNil(t, again.LastUsedAt)
	})

	t.Run("rejects an unknown key", func(t *testing.T) {
		_, err := svc.VerifyKey(ctx, "vg_deadbeef_notarealsecret")
		assert.ErrorIs(t, err, ierr.ErrKeyNotFound)
	})

	t.Run("rejects a revoked key", func(t *testing.T) {
		_, err := svc.RevokeKey(ctx, issued.Key.KeyHash, "owner-1")
		require.NoError(t, err)

		_, err = svc.VerifyKey(ctx, issued.PlaintextKey)
		assert.ErrorIs(t, err, ierr.ErrKeyRevoked)
	})
}

func TestVerifyKeyConcurrentUsageCount(t *testing.T) {
	svc, _ := newCredentialFixture(t)
	ctx := context.Background()

	issued, err := svc.IssueKey(ctx, "owner-1", "hot-key", "")
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.VerifyKey(ctx, issued.PlaintextKey)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	keys, err := svc.ListKeys(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, int64(n), keys[0].UsageCount)
}

func TestRevokeKey(t *testing.T) {
	svc, _ := newCredentialFixture(t)
	ctx := context.Background()

	issued, err := svc.IssueKey(ctx, "owner-1", "doomed", "")
	require.NoError(t, err)

	t.Run("rejects revocation by another owner", func(t *testing.T) {
		_, err := svc.RevokeKey(ctx, issued.Key.KeyHash, "owner-2")
		assert.ErrorIs(t, err, ierr.ErrForbidden)
	})

	t.Run("revokes and records the timestamp", func(t *testing.T) {
		key, err := svc.RevokeKey(ctx, issued.Key.KeyHash, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, apikey.StatusRevoked, key.Status)
		assert.NotNil(t, key.RevokedAt)
	})

	t.Run("revoking again is a no-op", func(t *testing.T) {
		key, err := svc.RevokeKey(ctx, issued.Key.KeyHash, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, apikey.StatusRevoked, key.Status)
	})

	t.Run("rejects an unknown hash", func(t *testing.T) {
		_, err := svc.RevokeKey(ctx, "no-such-hash", "owner-1")
		assert.ErrorIs(t, err, ierr.ErrKeyNotFound)
	})
}

func TestSessionLifecycle(t *testing.T) {
	svc, users := newCredentialFixture(t)
	ctx := context.Background()
	u := seedUser(t, users, "alice", "correct horse", true)

	base := time.Now()
	svc.now = func() time.Time { return base }

	token, err := svc.IssueSession(ctx, u.UserUUID)
	require.NoError(t, err)

	t.Run("valid within the validity window", func(t *testing.T) {
		svc.now = func() time.Time { return base.Add(1 * time.Hour) }
		subject, err := svc.VerifySession(token)
		require.NoError(t, err)
		assert.Equal(t, u.UserUUID, subject)
	})

	t.Run("expired after the validity window", func(t *testing.T) {
		svc.now = func() time.Time { return base.Add(25 * time.Hour) }
		_, err := svc.VerifySession(token)
		assert.ErrorIs(t, err, ierr.ErrTokenExpired)
	})

	t.Run("rejects garbage tokens", func(t *testing.T) {
		svc.now = time.Now
		_, err := svc.VerifySession("not.a.token")
		assert.ErrorIs(t, err, ierr.ErrInvalidToken)
	})

	t.Run("rejects a tampered signature", func(t *testing.T) {
		svc.now = func() time.Time { return base }
		tampered := token[:len(token)-2] + "xx"
		_, err := svc.VerifySession(tampered)
		assert.ErrorIs(t, err, ierr.ErrInvalidToken)
	})
}

func TestIssueSessionForLockedAccount(t *testing.T) {
	svc, users := newCredentialFixture(t)
	u := seedUser(t, users, "locked", "pw12345678", false)

	_, err := svc.IssueSession(context.Background(), u.UserUUID)
	assert.ErrorIs(t, err, ierr.ErrAccountLocked)
}

func TestLogin(t *testing.T) {
	svc, users := newCredentialFixture(t)
	ctx := context.Background()
	u := seedUser(t, users, "bob", "hunter2hunter2", true)

	t.Run("returns a token for valid credentials", func(t *testing.T) {
		token, loggedIn, err := svc.Login(ctx, "bob", "hunter2hunter2")
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.Equal(t, u.UserUUID, loggedIn.UserUUID)

		subject, err := svc.VerifySession(token)
		require.NoError(t, err)
		assert.Equal(t, u.UserUUID, subject)
	})

	t.Run("rejects a wrong password", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "bob", "wrong")
		assert.ErrorIs(t, err, ierr.ErrInvalidCredentials)
	})

	t.Run("rejects an unknown user without leaking existence", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "nobody", "whatever")
		assert.ErrorIs(t, err, ierr.ErrInvalidCredentials)
	})
}

func TestRegister(t *testing.T) {
	svc, _ := newCredentialFixture(t)
	ctx := context.Background()

	t.Run("creates a personal account from the korean type name", func(t *testing.T) {
		u, err := svc.Register(ctx, "carol", "carol@example.com", "Carol", "개인", "supersecret", nil)
		require.NoError(t, err)
		assert.Equal(t, user.TypePersonal, u.UserType)
		assert.True(t, u.IsActive)
		assert.NotEqual(t, "supersecret", u.PasswordHash)
	})

	t.Run("maps the organization type", func(t *testing.T) {
		u, err := svc.Register(ctx, "acme", "ops@acme.example", "Acme", "조직", "supersecret", nil)
		require.NoError(t, err)
		assert.Equal(t, user.TypeOrganization, u.UserType)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		_, err := svc.Register(ctx, "carol", "other@example.com", "Carol", "A01", "supersecret", nil)
		assert.ErrorIs(t, err, ierr.ErrConflict)
	})

	t.Run("rejects unknown user types", func(t *testing.T) {
		_, err := svc.Register(ctx, "dave", "dave@example.com", "Dave", "A99", "supersecret", nil)
		assert.ErrorIs(t, err, ierr.ErrValidation)
	})
}

func TestUsageHistoryLimit(t *testing.T) {
	svc, _ := newCredentialFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.usageLog.Insert(ctx, testUsageEvent("owner-1", i)))
	}

	events, err := svc.UsageHistory(ctx, "owner-1", 3)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Most recent first.
	assert.True(t, events[0].CreatedAt.After(events[1].CreatedAt) || events[0].CreatedAt.Equal(events[1].CreatedAt))
}

func TestUsageStatsWindow(t *testing.T) {
	svc, _ := newCredentialFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	insert := func(endpoint string, status int, age time.Duration, processing float64) {
		require.NoError(t, svc.usageLog.Insert(ctx, &usage.Event{
			UserUUID:       "owner-1",
			Endpoint:       endpoint,
			Method:         "POST",
			StatusCode:     status,
			ProcessingTime: processing,
			CreatedAt:      now.Add(-age),
		}))
	}
	insert("/transcribe/protected", 200, time.Hour, 1.0)
	insert("/transcribe/protected", 200, 2*time.Hour, 3.0)
	insert("/transcribe/protected", 502, 3*time.Hour, 2.0)
	insert("/transcribe", 200, 4*time.Hour, 5.0)
	// Outside the default 30-day window.
	insert("/transcribe", 200, 45*24*time.Hour, 9.0)

	stats, days, err := svc.UsageStats(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, 30, days)
	assert.Equal(t, int64(4), stats.TotalRequests)
	assert.Equal(t, int64(3), stats.SuccessfulRequests)
	require.Len(t, stats.Endpoints, 2)
	assert.Equal(t, "/transcribe/protected", stats.Endpoints[0].Endpoint)
	assert.Equal(t, int64(3), stats.Endpoints[0].RequestCount)
	assert.InDelta(t, 2.0, stats.Endpoints[0].AvgProcessingTime, 1e-9)
}

func testUsageEvent(owner string, i int) *usage.Event {
	return &usage.Event{
		UserUUID:   owner,
		Endpoint:   "/transcribe/protected",
		Method:     "POST",
		StatusCode: 200,
		CreatedAt:  time.Now().UTC().Add(time.Duration(i) * time.Second),
	}
}
