package handler

import (
	"context"

	"github.com/clearskies/clearskies/internal/api/middleware"
)

// GetDeviceID returns the device of a device-token caller, or "".
// This is a convenience wrapper around middleware.GetDeviceID.
func GetDeviceID(ctx context.Context) string {
	return middleware.GetDeviceID(ctx)
}

// GetRequestID returns the request ID set by the RequestID middleware.
func GetRequestID(ctx context.Context) string {
	return middleware.GetRequestID(ctx)
}
