package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Predefined service errors.
var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotConfigured      = errors.New("device tokens require an API key")
	ErrInvalidDeviceID    = errors.New("invalid device id")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDeviceRevoked      = errors.New("device revoked")
)

// Default token claims.
const (
	DefaultIssuer   = "clearskies-api"
	DefaultAudience = "clearskies-mobile"
)

// DeviceRepository stores devices that have been issued tokens.
type DeviceRepository interface {
	// RecordIssue registers a token issue, creating the device if needed.
	RecordIssue(ctx context.Context, deviceID string, at time.Time) (*Device, error)

	// FindByID returns ErrDeviceNotFound for unknown devices.
	FindByID(ctx context.Context, deviceID string) (*Device, error)

	// Revoke marks a device as revoked.
	Revoke(ctx context.Context, deviceID string, at time.Time) error
}

// ServiceConfig holds configuration for the auth service.
type ServiceConfig struct {
	// APIKey is the shared bearer secret. Empty disables authentication.
	APIKey string

	Issuer   string
	Audience string

	// Devices defaults to an in-memory repository.
	Devices DeviceRepository

	Logger zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Service authenticates callers and issues device tokens.
type Service struct {
	apiKey  []byte
	jwt     *JWTService
	devices DeviceRepository
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService creates a new auth service. Device tokens are signed with the API key.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	audience := cfg.Audience
	if audience == "" {
		audience = DefaultAudience
	}
	devices := cfg.Devices
	if devices == nil {
		devices = NewInMemoryDeviceRepository()
	}

	return &Service{
		apiKey: []byte(cfg.APIKey),
		jwt: NewJWTService(JWTConfig{
			SigningKey: cfg.APIKey,
			Issuer:     issuer,
			Audience:   audience,
			Now:        now,
		}),
		devices: devices,
		logger:  cfg.Logger,
		now:     now,
	}
}

// Enabled reports whether an API key is configured. Without one every
// request is accepted as anonymous.
func (s *Service) Enabled() bool {
	return len(s.apiKey) > 0
}

// Authenticate resolves a bearer token to a principal. The token is either
// the API key itself or a device token.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	if !s.Enabled() {
		return Principal{Kind: PrincipalAnonymous}, nil
	}
	if token == "" {
		return Principal{}, ErrMissingCredentials
	}
	if subtle.ConstantTimeCompare([]byte(token), s.apiKey) == 1 {
		return Principal{Kind: PrincipalAPIKey}, nil
	}
	if strings.Count(token, ".") != 2 {
		return Principal{}, ErrInvalidCredentials
	}

	claims, err := s.jwt.ValidateDeviceToken(token)
	if err != nil {
		return Principal{}, err
	}

	device, err := s.devices.FindByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		// Issued by an instance with its own in-memory repository.
	case err != nil:
		s.logger.Warn().Err(err).Str("device_id", claims.Subject).Msg("device lookup failed, accepting signed token")
	case device.Revoked():
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrDeviceRevoked)
	}

	return Principal{Kind: PrincipalDevice, DeviceID: claims.Subject}, nil
}

// IssueDeviceToken issues a token for the requesting device.
func (s *Service) IssueDeviceToken(ctx context.Context, req *DeviceTokenRequest) (*TokenResponse, error) {
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}
	if errs := req.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDeviceID, errs[0].Message)
	}

	device, err := s.devices.RecordIssue(ctx, req.DeviceID, s.now())
	if err != nil {
		return nil, fmt.Errorf("recording device: %w", err)
	}
	if device.Revoked() {
		return nil, ErrDeviceRevoked
	}

	token, expiresAt, err := s.jwt.GenerateDeviceToken(req.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("generating device token: %w", err)
	}

	s.logger.Info().
		Str("device_id", req.DeviceID).
		Int("issue_count", device.IssueCount).
		Msg("device token issued")

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(DeviceTokenExpiry.Seconds()),
		DeviceID:    req.DeviceID,
		ExpiresAt:   expiresAt,
	}, nil
}

// GetDevice retrieves a device by ID.
func (s *Service) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	return s.devices.FindByID(ctx, deviceID)
}

// RevokeDevice rejects every current and future token of the device.
func (s *Service) RevokeDevice(ctx context.Context, deviceID string) error {
	if err := s.devices.Revoke(ctx, deviceID, s.now()); err != nil {
		return err
	}
	s.logger.Info().Str("device_id", deviceID).Msg("device revoked")
	return nil
}
