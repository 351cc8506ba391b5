// Package api exposes the deal workflow engine over HTTP with echo.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/engine"
)

// API wires the HTTP handlers to an Engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// New creates an API for eng.
func New(eng *engine.Engine, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{eng: eng, logger: logger}
}

// Handler returns an echo instance with every route registered.
func (a *API) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = a.errorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(a.requestLogger())
	a.RegisterRoutes(e)
	return e
}

// RegisterRoutes registers the engine routes on e.
func (a *API) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", a.health)

	v1 := e.Group("/v1")
	a.registerWorkflowRoutes(v1)
	a.registerWebhookRoutes(v1)
	a.registerCronRoutes(v1)
	a.registerStatsRoutes(v1)
}

func (a *API) registerWorkflowRoutes(g *echo.Group) {
	g.GET("/workflows", a.listWorkflowNames)
	g.POST("/workflows/:type", a.startWorkflow)

	g.GET("/instances", a.listInstances)
	g.GET("/instances/:id", a.getInstance)
	g.GET("/instances/:id/timeline", a.getTimeline)
	g.GET("/instances/:id/waits", a.getWaits)
	g.POST("/instances/:id/events/:name", a.deliverEvent)
	g.POST("/instances/:id/cancel", a.cancelInstance)
	g.GET("/instances/:id/stream", a.streamInstance)
	g.GET("/stream", a.streamTopic)
}

func (a *API) registerWebhookRoutes(g *echo.Group) {
	g.POST("/webhooks/esign", a.signatureWebhook)
	g.POST("/webhooks/payments", a.paymentWebhook)
}

func (a *API) registerCronRoutes(g *echo.Group) {
	g.GET("/crons", a.listCrons)
	g.POST("/crons/:name/run", a.runCron)
	g.POST("/crons/:name/enable", a.enableCron)
	g.POST("/crons/:name/disable", a.disableCron)
}

func (a *API) registerStatsRoutes(g *echo.Group) {
	g.GET("/stats", a.stats)
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (a *API) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := err.Error()

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	} else {
		code = statusFor(err)
	}

	if code >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("method", c.Request().Method),
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, ErrorResponse{Error: msg})
}

// statusFor maps engine sentinel errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dealflow.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, dealflow.ErrRunNotFound),
		errors.Is(err, dealflow.ErrWorkflowNotFound),
		errors.Is(err, dealflow.ErrNDANotFound),
		errors.Is(err, dealflow.ErrDealNotFound),
		errors.Is(err, dealflow.ErrGrantNotFound),
		errors.Is(err, dealflow.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, dealflow.ErrRunTerminal),
		errors.Is(err, dealflow.ErrRunAlreadyExists),
		errors.Is(err, dealflow.ErrDuplicateNDA),
		errors.Is(err, dealflow.ErrExclusivityConflict),
		errors.Is(err, dealflow.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, dealflow.ErrInvestmentOutOfRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dealflow.ErrStoreClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			a.logger.Debug("http request",
				slog.String("method", c.Request().Method),
				slog.String("path", c.Path()),
				slog.Int("status", c.Response().Status),
				slog.Duration("elapsed", time.Since(start)),
				slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	}
}

func (a *API) health(c echo.Context) error {
	if err := a.eng.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
