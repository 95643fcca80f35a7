package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	echoprometheus "github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const shutdownTimeout = 5 * time.Second

var ErrServerFailed = errors.New("server failed to serve")

// Server hosts the query API plus the prometheus scrape endpoint on a single
// echo instance.
type Server struct {
	echo    *echo.Echo
	logger  *slog.Logger
	address string
}

func NewServer(logger *slog.Logger, handler *Handler, address string) *Server {
	logger = logger.With(slog.String("module", "api-server"))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.String("id", v.RequestID),
			)
			return nil
		},
	}))
	e.Use(echoprometheus.NewMiddleware("volquery_api"))

	e.GET("/metrics", echoprometheus.NewHandler())
	handler.Register(e)

	return &Server{
		echo:    e,
		logger:  logger,
		address: address,
	}
}

// Start serves until Shutdown is called; the error channel receives a single
// value if the listener fails for any other reason.
func (s *Server) Start() chan error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("Starting server", slog.String("address", s.address))

		err := s.echo.Start(s.address)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.Join(ErrServerFailed, fmt.Errorf("address %s", s.address), err)
		}
	}()

	return errCh
}

func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
