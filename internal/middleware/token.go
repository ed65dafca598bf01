package middleware

import (
	jwtPkg "HealthVision/pkg/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"os"
)

const (
	AccessTokenSecret = "JWT_ACCESS_TOKEN_SECRET"
	StaffIDKey        = "staff_id"
)

type tokenMiddleware struct {
	secretEnvKey string
}

func newTokenMiddleware() *tokenMiddleware {
	return &tokenMiddleware{secretEnvKey: AccessTokenSecret}
}

// verify checks the bearer header. Websocket upgrades may carry the token in
// the access_token query parameter instead, since browsers cannot set headers
// on them.
func (t *tokenMiddleware) verify(ctx *fiber.Ctx) (*jwt.Token, error) {
	if ctx.Get("Authorization") == "" && websocket.IsWebSocketUpgrade(ctx) {
		if queryToken := ctx.Query("access_token"); queryToken != "" {
			return jwtPkg.Parse(queryToken, os.Getenv(t.secretEnvKey))
		}
	}
	return jwtPkg.VerifyTokenHeader(ctx, t.secretEnvKey)
}

func (m *middleware) NewTokenMiddleware(ctx *fiber.Ctx) error {
	requestID := m.GetRequestID(ctx)

	m.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
		"method":     ctx.Method(),
		"client_ip":  ctx.IP(),
	}).Debug("Incoming request")

	staffToken, err := m.token.verify(ctx)
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Warn("Token verification failed")
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized, access token invalid or expired",
			"code":  "UNAUTHORIZED",
		})
	}

	claims, ok := staffToken.Claims.(jwt.MapClaims)
	if !ok {
		m.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      "Invalid token claims",
		}).Warn("Token claims check")
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized, access token invalid or expired",
			"code":  "UNAUTHORIZED",
		})
	}

	staff, err := jwtPkg.StaffFromClaims(claims)
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Warn("Token claims check")
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized, access token invalid or expired",
			"code":  "UNAUTHORIZED",
		})
	}

	ctx.Locals("user", staff)
	ctx.Locals(StaffIDKey, staff.ID)

	m.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"staff_id":   staff.ID,
	}).Debug("Authentication successful")
	return ctx.Next()
}
