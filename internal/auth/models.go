// Package auth authenticates API callers by shared API key or device token.
package auth

import (
	"regexp"
	"time"
)

// MaxDeviceIDLength bounds device identifiers.
const MaxDeviceIDLength = 128

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// PrincipalKind identifies how a caller authenticated.
type PrincipalKind string

const (
	PrincipalAnonymous PrincipalKind = "anonymous"
	PrincipalAPIKey    PrincipalKind = "api_key"
	PrincipalDevice    PrincipalKind = "device"
)

// Principal is an authenticated caller.
type Principal struct {
	Kind     PrincipalKind
	DeviceID string
}

// Device is a device that has been issued a token.
type Device struct {
	ID           string     `json:"deviceId"`
	FirstSeenAt  time.Time  `json:"firstSeenAt"`
	LastIssuedAt time.Time  `json:"lastIssuedAt"`
	IssueCount   int        `json:"issueCount"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
}

// Revoked reports whether the device has been revoked.
func (d *Device) Revoked() bool {
	return d != nil && d.RevokedAt != nil
}

// DeviceTokenRequest is the request body for issuing a device token.
type DeviceTokenRequest struct {
	DeviceID string `json:"deviceId"`
}

// Validate validates the device token request.
func (r *DeviceTokenRequest) Validate() []FieldError {
	var errors []FieldError

	switch {
	case r.DeviceID == "":
		errors = append(errors, FieldError{
			Field:   "deviceId",
			Message: "device id is required",
			Code:    "REQUIRED",
		})
	case len(r.DeviceID) > MaxDeviceIDLength:
		errors = append(errors, FieldError{
			Field:   "deviceId",
			Message: "device id must be at most 128 characters",
			Code:    "TOO_LONG",
		})
	case !deviceIDPattern.MatchString(r.DeviceID):
		errors = append(errors, FieldError{
			Field:   "deviceId",
			Message: "device id may only contain letters, digits and . _ : -",
			Code:    "INVALID_FORMAT",
		})
	}

	return errors
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// TokenResponse represents an issued device token.
type TokenResponse struct {
	// AccessToken is the signed device token.
	AccessToken string `json:"accessToken"`

	// TokenType is always "Bearer".
	TokenType string `json:"tokenType"`

	// ExpiresIn is the number of seconds until the token expires.
	ExpiresIn int64 `json:"expiresIn"`

	DeviceID  string    `json:"deviceId"`
	ExpiresAt time.Time `json:"expiresAt"`
}
