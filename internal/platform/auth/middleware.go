package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/profileapi/internal/platform/telemetry"
)

// MsgInvalidCredentials is the only message a rejected caller sees.
const MsgInvalidCredentials = "Invalid authentication credentials"

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Gate requires a valid bearer token. On success the subject is stored in
// the request context; on failure the caller gets a 401 whose body does not
// depend on the cause.
func Gate(v Verifier, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return reject(c, logger, fail(ReasonMissingHeader, nil))
			}
			token, ok := BearerToken(header)
			if !ok {
				return reject(c, logger, fail(ReasonMalformedHeader, nil))
			}

			subject, err := v.Verify(c.Request().Context(), token)
			if err != nil {
				return reject(c, logger, err)
			}

			telemetry.RecordAuth(telemetry.OutcomeAuthenticated, "")
			c.Set("user_id", subject.UserID)
			c.SetRequest(c.Request().WithContext(WithSubject(c.Request().Context(), subject)))
			return next(c)
		}
	}
}

func reject(c echo.Context, logger zerolog.Logger, err error) error {
	reason := ReasonOf(err)
	rid, _ := c.Get("request_id").(string)

	logger.Warn().
		Err(err).
		Str("request_id", rid).
		Str("reason", reason).
		Str("path", c.Request().URL.Path).
		Msg("authentication rejected")
	telemetry.RecordAuth(telemetry.OutcomeRejected, reason)

	c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return echo.NewHTTPError(http.StatusUnauthorized, MsgInvalidCredentials).SetInternal(err)
}
