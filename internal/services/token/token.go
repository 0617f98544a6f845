// Package token issues, validates, and consumes the QR credentials carried
// on a carnet: a long-lived permanent payload rendered onto the card, and a
// short-lived single-use login payload.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carnetapp/carnetd/internal/models"
	"github.com/carnetapp/carnetd/internal/obs"
	"github.com/carnetapp/carnetd/internal/repository"
	"github.com/sethvargo/go-retry"
)

const (
	// PermanentPrefix marks payloads rendered onto the physical carnet.
	PermanentPrefix = "QR-"
	// EphemeralPrefix marks single-use login payloads.
	EphemeralPrefix = "LOGIN|"

	// MaxEphemeralAge is how long a login payload stays valid. Expiry is
	// computed from the timestamp embedded in the payload at consumption
	// time; no expiry is stored per row.
	MaxEphemeralAge = 120 * time.Second

	// maxInsertAttempts bounds payload regeneration on hash collisions.
	maxInsertAttempts = 3

	permanentRandomLen = 16
	nonceLen           = 8
)

// ErrNotFound is the uniform failure for every validation and consumption
// error. Callers never learn which check rejected the payload.
var ErrNotFound = errors.New("token not found")

// Service issues and consumes QR tokens backed by the repository.
type Service struct {
	repo *repository.Repository
	now  func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a token service.
func NewService(repo *repository.Repository, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HashPayload computes the SHA-256 hex digest used as the storage key.
func HashPayload(payload string) string {
	hash := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(hash[:])
}

// IssuePermanent returns the user's active carnet token, creating one if
// none exists. An optional explicit payload replaces the generated one.
// Hash collisions on insert are retried with a fresh payload, bounded at
// maxInsertAttempts; an explicit payload is never regenerated.
func (s *Service) IssuePermanent(ctx context.Context, userID int64, explicitPayload ...string) (*models.QRToken, error) {
	existing, err := s.repo.GetActivePermanentQRToken(ctx, userID, PermanentPrefix)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("looking up permanent token: %w", err)
	}

	var explicit string
	if len(explicitPayload) > 0 {
		explicit = explicitPayload[0]
	}

	var token *models.QRToken
	backoff := retry.WithMaxRetries(maxInsertAttempts-1, retry.BackoffFunc(func() (time.Duration, bool) {
		return 0, false
	}))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		payload := explicit
		if payload == "" {
			generated, genErr := s.generatePermanentPayload(userID)
			if genErr != nil {
				return genErr
			}
			payload = generated
		}

		candidate := &models.QRToken{
			UserID:      userID,
			Payload:     payload,
			PayloadHash: HashPayload(payload),
		}
		if createErr := s.repo.CreateQRToken(ctx, candidate); createErr != nil {
			if repository.IsUniqueViolation(createErr) && explicit == "" {
				return retry.RetryableError(createErr)
			}
			return createErr
		}

		token = candidate
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("issuing permanent token: %w", err)
	}

	obs.TokensIssued.WithLabelValues("permanent").Inc()
	return token, nil
}

// Validate looks up an active token by its payload. Read-only; used for
// informational checks, not for login.
func (s *Service) Validate(ctx context.Context, payload string) (*models.QRToken, error) {
	token, err := s.repo.GetActiveQRTokenByHash(ctx, HashPayload(payload))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return token, nil
}

// Revoke deactivates every active token owned by the user and returns the
// number of rows changed. Zero is not an error.
func (s *Service) Revoke(ctx context.Context, userID int64) (int64, error) {
	return s.repo.DeactivateUserQRTokens(ctx, userID)
}

// IssueEphemeral mints a single-use login payload bound to the user's
// current username and password hash. Previously issued login payloads stay
// valid until they expire or are consumed. Changing the password invalidates
// all of them at once, since the embedded hash no longer matches.
func (s *Service) IssueEphemeral(ctx context.Context, userID int64) (string, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	if !user.Active {
		return "", ErrNotFound
	}

	nonce, err := randomHex(nonceLen)
	if err != nil {
		return "", err
	}

	payload := fmt.Sprintf("%sUSR=%s|PWDH=%s|TS=%d|NONCE=%s",
		EphemeralPrefix, user.Username, user.PasswordHash, s.now().Unix(), nonce)

	token := &models.QRToken{
		UserID:      userID,
		Payload:     payload,
		PayloadHash: HashPayload(payload),
	}
	if err := s.repo.CreateQRToken(ctx, token); err != nil {
		return "", fmt.Errorf("issuing login token: %w", err)
	}

	obs.TokensIssued.WithLabelValues("ephemeral").Inc()
	return payload, nil
}

// TryConsumeEphemeral is the single entry point for QR login. Every check
// failure collapses to ErrNotFound so a caller cannot probe which one
// rejected the payload. On success the row is deactivated, exactly once,
// and the owning user is returned.
func (s *Service) TryConsumeEphemeral(ctx context.Context, rawPayload string) (*models.User, error) {
	if !strings.HasPrefix(rawPayload, EphemeralPrefix) {
		return nil, s.reject()
	}

	token, err := s.repo.GetActiveQRTokenByHash(ctx, HashPayload(rawPayload))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.reject()
		}
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.reject()
		}
		return nil, err
	}
	if !user.Active {
		return nil, s.reject()
	}

	fields, ok := parseEphemeralPayload(rawPayload)
	if !ok {
		return nil, s.reject()
	}

	age := s.now().Unix() - fields.IssuedAt
	if age < 0 || age > int64(MaxEphemeralAge/time.Second) {
		return nil, s.reject()
	}

	if !strings.EqualFold(fields.Username, user.Username) {
		return nil, s.reject()
	}
	if !strings.EqualFold(fields.PasswordHash, user.PasswordHash) {
		return nil, s.reject()
	}

	consumed, err := s.repo.ConsumeQRToken(ctx, token.ID)
	if err != nil {
		return nil, err
	}
	if !consumed {
		// Lost the race against a concurrent consumption.
		return nil, s.reject()
	}

	obs.TokensConsumed.Inc()
	return user, nil
}

func (s *Service) reject() error {
	obs.TokensRejected.Inc()
	return ErrNotFound
}

// generatePermanentPayload builds "QR-<userID>-<issueMarker>-<32 hex chars>".
func (s *Service) generatePermanentPayload(userID int64) (string, error) {
	random, err := randomHex(permanentRandomLen)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d-%d-%s", PermanentPrefix, userID, s.now().Unix(), random), nil
}

func randomHex(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
