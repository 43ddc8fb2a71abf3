package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/onlyoffice/pipedrive-int/internal/logging"
)

// ErrMissingSecret is returned when the standalone host has no client secret
// to sign app-context tokens with.
var ErrMissingSecret = errors.New("host: client secret is required to sign tokens")

// Standalone implements Commands outside a real CRM modal (CLI mode). It
// signs the app-context token itself with the app's client secret; modal
// commands degrade to log lines because there is no modal to drive.
type Standalone struct {
	secret    []byte
	userID    int64
	companyID int64
	tokenTTL  time.Duration
	logger    *logging.Logger
	now       func() time.Time
}

// NewStandalone creates a standalone host for the given acting user.
func NewStandalone(secret string, userID, companyID int64, logger *logging.Logger) *Standalone {
	return &Standalone{
		secret:    []byte(secret),
		userID:    userID,
		companyID: companyID,
		tokenTTL:  5 * time.Minute,
		logger:    logger,
		now:       time.Now,
	}
}

// CloseModal logs the close request; there is no modal in CLI mode.
func (s *Standalone) CloseModal(ctx context.Context) error {
	s.logger.Debug().Msg("host: close modal requested")
	return nil
}

// Resize logs the resize request; there is no modal in CLI mode.
func (s *Standalone) Resize(ctx context.Context, size Size) error {
	s.logger.Debug().Int("height", size.Height).Int("width", size.Width).Msg("host: resize requested")
	return nil
}

// SignedToken mints an app-context token the way the CRM would: HS256 over
// the app's client secret with the acting user and company as claims.
func (s *Standalone) SignedToken(ctx context.Context) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}

	now := s.now()
	claims := jwt.MapClaims{
		"identity":   s.userID,
		"company_id": s.companyID,
		"iat":        now.Unix(),
		"exp":        now.Add(s.tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("host: failed to sign app-context token: %w", err)
	}
	return signed, nil
}

// ShowSnackbar surfaces the message through the structured log. In a real
// modal the CRM renders a toast; on the CLI the log line is the toast.
func (s *Standalone) ShowSnackbar(ctx context.Context, message string) error {
	s.logger.Info().Str("snackbar", message).Msg("notification")
	return nil
}
