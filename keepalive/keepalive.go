// Package keepalive serves the liveness endpoint polled by uptime monitors.
package keepalive

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/elum-utils/warden/interfaces"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const aliveText = "Bot is alive!"

// collectors register once per process
var requestMetrics = sync.OnceValue(func() echo.MiddlewareFunc {
	return echoprometheus.NewMiddleware("warden_keepalive")
})

// Server answers GET / with a static text and nothing else.
type Server struct {
	echo   *echo.Echo
	httpd  *http.Server
	logger interfaces.Logger
}

// New creates a liveness server bound to addr.
func New(addr string, logger interfaces.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestMetrics())

	s := &Server{echo: e, logger: logger}
	e.GET("/", s.HandleAlive)

	s.httpd = &http.Server{
		Addr:              addr,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// HandleAlive returns the static liveness text.
func (s *Server) HandleAlive(c echo.Context) error {
	return c.String(http.StatusOK, aliveText)
}

// ServeHTTP lets the server be exercised without a listener.
func (s *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	s.echo.ServeHTTP(rw, req)
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Info("starting keepalive server", map[string]any{"bind": s.httpd.Addr})
		}
		if err := s.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpd.Shutdown(shutdownCtx)
}
