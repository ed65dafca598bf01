package context

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

type key string

const (
	RequestIDKey key = "request_id"
	StaffIDKey   key = "staff_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	requestID, ok := ctx.Value(RequestIDKey).(string)
	if !ok || requestID == "" {
		return "unknown"
	}
	return requestID
}

func WithStaffID(ctx context.Context, staffID string) context.Context {
	return context.WithValue(ctx, StaffIDKey, staffID)
}

// GetStaffID returns the authenticated caller, empty when the route is public.
func GetStaffID(ctx context.Context) string {
	staffID, _ := ctx.Value(StaffIDKey).(string)
	return staffID
}

// FromFiberCtx detaches a context from the fiber request so clip work may
// outlive the handler, carrying the request and staff IDs for logging.
func FromFiberCtx(c *fiber.Ctx) context.Context {
	ctx := context.Background()

	requestID, ok := c.Locals("X-Request-ID").(string)
	if !ok || requestID == "" {
		requestID = c.Get("X-Request-ID")

		if requestID == "" {
			requestID = "unknown"
		}
	}

	if staffID, ok := c.Locals(string(StaffIDKey)).(string); ok && staffID != "" {
		ctx = WithStaffID(ctx, staffID)
	}

	return WithRequestID(ctx, requestID)
}
