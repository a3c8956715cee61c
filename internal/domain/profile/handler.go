package profile

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/profileapi/internal/platform/auth"
)

const (
	MsgProfileNotFound  = "User profile not found"
	MsgQueryRequired    = "query parameter is required"
	MsgStoreUnavailable = "Profile store unavailable"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the profile endpoints. gate protects /me.
func (h *Handler) RegisterRoutes(g *echo.Group, gate echo.MiddlewareFunc) {
	g.GET("/me", h.GetMe, gate)
	g.GET("/doctors/search", h.SearchDoctors)
}

func (h *Handler) GetMe(c echo.Context) error {
	subject := auth.SubjectFromContext(c.Request().Context())
	if subject == nil {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		return echo.NewHTTPError(http.StatusUnauthorized, auth.MsgInvalidCredentials)
	}

	up, err := h.svc.GetForSubject(c.Request().Context(), subject)
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str("request_id", requestID(c)).
			Str("user_id", subject.UserID).
			Msg("profile lookup failed")
		return echo.NewHTTPError(http.StatusNotFound, MsgProfileNotFound).SetInternal(err)
	}
	return c.JSON(http.StatusOK, up)
}

func (h *Handler) SearchDoctors(c echo.Context) error {
	params := c.QueryParams()
	if !params.Has("query") {
		return echo.NewHTTPError(http.StatusBadRequest, MsgQueryRequired)
	}

	doctors, err := h.svc.SearchDoctors(c.Request().Context(), params.Get("query"))
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("request_id", requestID(c)).
			Msg("doctor search failed")
		return echo.NewHTTPError(http.StatusServiceUnavailable, MsgStoreUnavailable).SetInternal(err)
	}
	return c.JSON(http.StatusOK, doctors)
}

func requestID(c echo.Context) string {
	rid, _ := c.Get("request_id").(string)
	return rid
}
