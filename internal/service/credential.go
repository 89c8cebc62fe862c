package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/voicegate/stt-gateway-api/internal/config"
	"github.com/voicegate/stt-gateway-api/internal/domain/apikey"
	"github.com/voicegate/stt-gateway-api/internal/domain/usage"
	"github.com/voicegate/stt-gateway-api/internal/domain/user"
	"github.com/voicegate/stt-gateway-api/internal/ierr"
	"github.com/voicegate/stt-gateway-api/internal/util"
)

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)

const maxDescriptionLength = 500

// CredentialService owns both credential schemes: stateless signed session
// tokens for interactive callers and hashed long-lived API keys for
// programmatic ones. Sessions simply expire; API keys are soft-revoked so
// the audit trail survives.
type CredentialService struct {
	keys     apikey.Repository
	users    user.Repository
	usageLog usage.Repository
	jwtCfg   config.JWTConfig
	logger   *zap.Logger

	// now is swappable for expiry tests.
	now func() time.Time
}

func NewCredentialService(keys apikey.Repository, users user.Repository, usageLog usage.Repository, jwtCfg config.JWTConfig, logger *zap.Logger) *CredentialService {
	return &CredentialService{
		keys:     keys,
		users:    users,
		usageLog: usageLog,
		jwtCfg:   jwtCfg,
		logger:   logger.Named("CredentialService"),
		now:      time.Now,
	}
}

// IssuedKey carries the one-time plaintext secret plus the stored metadata.
type IssuedKey struct {
	PlaintextKey string
	Key          *apikey.APIKey
}

func (s *CredentialService) IssueKey(ctx context.Context, ownerUUID, label, description string) (*IssuedKey, error) {
	if !labelPattern.MatchString(label) {
		return nil, fmt.Errorf("%w: label must be 3-50 characters of letters, digits, hyphen or underscore", ierr.ErrValidation)
	}
	if len(description) > maxDescriptionLength {
		return nil, fmt.Errorf("%w: description exceeds %d characters", ierr.ErrValidation, maxDescriptionLength)
	}

	exists, err := s.keys.LabelExists(ctx, ownerUUID, label)
	if err != nil {
		return nil, fmt.Errorf("repository error checking label: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %q", ierr.ErrDuplicateLabel, label)
	}

	fullKey, prefix, keyHash, err := util.GenerateAPIKey()
	if err != nil {
		s.logger.Error("Failed to generate api key components", zap.Error(err))
		return nil, fmt.Errorf("%w: failed generating key: %v", ierr.ErrInternalServer, err)
	}

	newKey := &apikey.APIKey{
		KeyHash:     keyHash,
		Prefix:      prefix,
		UserUUID:    ownerUUID,
		Label:       label,
		Description: description,
		Status:      apikey.StatusActive,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.keys.Create(ctx, newKey); err != nil {
		s.logger.Error("Failed to save new api key", zap.Error(err))
		return nil, fmt.Errorf("repository error creating api key: %w", err)
	}

	s.logger.Info("API key issued",
		zap.String("user_uuid", ownerUUID),
		zap.String("label", label),
		zap.String("prefix", prefix),
	)

	return &IssuedKey{PlaintextKey: fullKey, Key: newKey}, nil
}

// VerifyKey resolves a presented plaintext key to its owner. The lookup goes
// through the sha256 of the presented secret; the stored hash is compared in
// constant time. A hit updates the usage counter atomically in the store.
func (s *CredentialService) VerifyKey(ctx context.Context, presented string) (*apikey.APIKey, error) {
	presentedHash := util.HashAPIKey(presented)

	key, err := s.keys.FindByHash(ctx, presentedHash)
	if err != nil {
		if errors.Is(err, ierr.ErrKeyNotFound) {
			return nil, ierr.ErrKeyNotFound
		}
		return nil, fmt.Errorf("repository error finding api key: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(presentedHash), []byte(key.KeyHash)) != 1 {
		return nil, ierr.ErrKeyNotFound
	}
	if !key.Active() {
		return nil, ierr.ErrKeyRevoked
	}

	if err := s.keys.TouchUsage(ctx, key.KeyHash, s.now().UTC()); err != nil {
		// The caller is already authenticated; a failed counter bump is an
		// operational problem, not an auth failure.
		s.logger.Warn("Failed to update api key usage", zap.String("prefix", key.Prefix), zap.Error(err))
	}

	return key, nil
}

// RevokeKey disables a key identified by its hash. Revoking an already
// revoked key succeeds as a no-op.
func (s *CredentialService) RevokeKey(ctx context.Context, keyHash, requestingOwner string) (*apikey.APIKey, error) {
	key, err := s.keys.FindByHash(ctx, keyHash)
	if err != nil {
		if errors.Is(err, ierr.ErrKeyNotFound) {
			return nil, ierr.ErrKeyNotFound
		}
		return nil, fmt.Errorf("repository error finding api key: %w", err)
	}

	if key.UserUUID != requestingOwner {
		return nil, fmt.Errorf("%w: key belongs to another user", ierr.ErrForbidden)
	}

	if !key.Active() {
		return key, nil
	}

	revokedAt := s.now().UTC()
	if err := s.keys.Revoke(ctx, keyHash, revokedAt); err != nil {
		return nil, fmt.Errorf("repository error revoking api key: %w", err)
	}

	key.Status = apikey.StatusRevoked
	key.RevokedAt = &revokedAt

	s.logger.Info("API key revoked",
		zap.String("user_uuid", requestingOwner),
		zap.String("prefix", key.Prefix),
	)
	return key, nil
}

func (s *CredentialService) ListKeys(ctx context.Context, ownerUUID string) ([]*apikey.APIKey, error) {
	keys, err := s.keys.ListByOwner(ctx, ownerUUID)
	if err != nil {
		return nil, fmt.Errorf("repository error listing api keys: %w", err)
	}
	return keys, nil
}

// UsageHistory lists an owner's recent API calls, most recent first. The
// limit is clamped to keep a single request from paging the whole log.
func (s *CredentialService) UsageHistory(ctx context.Context, ownerUUID string, limit int) ([]*usage.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	events, err := s.usageLog.ListByOwner(ctx, ownerUUID, limit)
	if err != nil {
		return nil, fmt.Errorf("repository error listing usage events: %w", err)
	}
	return events, nil
}

// UsageStats aggregates the whole usage log over the trailing window. Days
// outside [1, 365] fall back to the 30-day default.
func (s *CredentialService) UsageStats(ctx context.Context, days int) (*usage.Stats, int, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	stats, err := s.usageLog.StatsSince(ctx, since)
	if err != nil {
		return nil, 0, fmt.Errorf("repository error aggregating usage stats: %w", err)
	}
	return stats, days, nil
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// IssueSession produces a signed, self-contained token. Verification never
// touches the database, which is why sessions expire instead of being
// revocable.
func (s *CredentialService) IssueSession(ctx context.Context, userUUID string) (string, error) {
	u, err := s.users.FindByUUID(ctx, userUUID)
	if err != nil {
		if errors.Is(err, ierr.ErrUserNotFound) {
			return "", ierr.ErrUserNotFound
		}
		return "", fmt.Errorf("repository error finding user: %w", err)
	}
	if !u.IsActive {
		return "", ierr.ErrAccountLocked
	}

	now := s.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.jwtCfg.Issuer,
			Subject:   u.UserUUID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtCfg.Validity)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtCfg.Secret))
	if err != nil {
		return "", fmt.Errorf("%w: signing session token: %v", ierr.ErrInternalServer, err)
	}
	return signed, nil
}

func (s *CredentialService) VerifySession(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtCfg.Secret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ierr.ErrTokenExpired
		}
		return "", ierr.ErrInvalidToken
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ierr.ErrInvalidToken
	}
	return claims.Subject, nil
}

// Login authenticates by user id + password and issues a session token.
func (s *CredentialService) Login(ctx context.Context, userID, password string) (string, *user.User, error) {
	u, err := s.users.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ierr.ErrUserNotFound) {
			return "", nil, ierr.ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("repository error finding user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		s.logger.Info("Invalid login attempt", zap.String("user_id", userID))
		return "", nil, ierr.ErrInvalidCredentials
	}

	token, err := s.IssueSession(ctx, u.UserUUID)
	if err != nil {
		return "", nil, err
	}

	s.logger.Info("User logged in", zap.String("user_id", userID))
	return token, u, nil
}

// Register creates a user account. Korean type names from the upstream
// client map onto the A01/A02 codes.
func (s *CredentialService) Register(ctx context.Context, userID, email, name, userType, password string, phoneNumber *string) (*user.User, error) {
	typeCode, err := normalizeUserType(userType)
	if err != nil {
		return nil, err
	}
	if userID == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%w: user_id, email and password are required", ierr.ErrValidation)
	}

	if _, err := s.users.FindByUserID(ctx, userID); err == nil {
		return nil, fmt.Errorf("%w: user %q already exists", ierr.ErrConflict, userID)
	} else if !errors.Is(err, ierr.ErrUserNotFound) {
		return nil, fmt.Errorf("repository error finding user: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%w: hashing password: %v", ierr.ErrInternalServer, err)
	}

	u := &user.User{
		UserID:       userID,
		Email:        email,
		Name:         name,
		UserType:     typeCode,
		PhoneNumber:  phoneNumber,
		PasswordHash: string(hashed),
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("repository error creating user: %w", err)
	}

	s.logger.Info("User registered", zap.String("user_id", userID), zap.String("user_type", typeCode))
	return u, nil
}

func normalizeUserType(userType string) (string, error) {
	switch userType {
	case user.TypePersonal, "개인":
		return user.TypePersonal, nil
	case user.TypeOrganization, "조직":
		return user.TypeOrganization, nil
	default:
		return "", fmt.Errorf("%w: user_type must be A01, A02, 개인 or 조직", ierr.ErrValidation)
	}
}
