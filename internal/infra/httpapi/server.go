// Package httpapi is the HTTP control surface for coordinator dashboards.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"attendance_tracker_bot/internal/app/session"
	"attendance_tracker_bot/internal/domain/batch"
	"attendance_tracker_bot/internal/domain/report"
	"attendance_tracker_bot/internal/infra/metrics"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

// Sessions is the session management the API drives.
type Sessions interface {
	Start(ctx context.Context, coordinatorID string) (session.State, error)
	IsConnected(coordinatorID string) bool
	Logout(ctx context.Context, coordinatorID string) error
	SelectGroup(ctx context.Context, coordinatorID, groupID string) (*batch.Batch, error)
	UpdateSettings(ctx context.Context, coordinatorID string, tracking, sharing bool) (*batch.Batch, error)
	SetParticipantRole(ctx context.Context, coordinatorID, participantID string, role batch.Role) (*batch.Batch, error)
	SendDigest(ctx context.Context, coordinatorID string) error
	Batch(ctx context.Context, coordinatorID string) (*batch.Batch, error)
}

// Dashboards streams coordinator events over an upgraded connection.
type Dashboards interface {
	ServeWS(w http.ResponseWriter, r *http.Request, coordinatorID string)
}

type Options struct {
	Address    string
	Sessions   Sessions
	Dashboards Dashboards
	Reports    report.Repository
	// Health reports whether the store is reachable.
	Health func(ctx context.Context) error
	Logger *logrus.Entry
}

type Server struct {
	opts *Options
	app  *echo.Echo
}

func NewServer(opts *Options) *Server {
	s := &Server{opts: opts, app: echo.New()}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.HidePort = true
	s.app.Validator = newValidator()
	s.app.HTTPErrorHandler = newHTTPErrorHandler(s.opts.Logger)

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{DisableStackAll: true}))
	s.app.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := s.opts.Logger.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			})
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Debug("Request served")
			return nil
		},
	}))

	s.app.GET("/healthz", s.health)
	s.app.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	s.app.GET("/ws/:coordinatorID", s.dashboard)

	api := s.app.Group("/api")
	registerSessionAPI(api.Group("/sessions/:coordinatorID"), s.opts.Sessions)
	registerBatchAPI(api.Group("/batches/:coordinatorID"), s.opts)
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	if err := s.app.Start(s.opts.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) health(c echo.Context) error {
	if s.opts.Health != nil {
		if err := s.opts.Health(c.Request().Context()); err != nil {
			s.opts.Logger.WithError(err).Warn("Health check failed")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (s *Server) dashboard(c echo.Context) error {
	s.opts.Dashboards.ServeWS(c.Response(), c.Request(), c.Param("coordinatorID"))
	return nil
}
