// Package server exposes the document and chat pipelines over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/docchat/internal/domain"
	"github.com/mohammad-safakhou/docchat/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service is the pipeline surface the handlers need.
type Service interface {
	AddDocument(ctx context.Context, in pipeline.NewDocument) (domain.Document, pipeline.IngestReport, error)
	Document(ctx context.Context, id string) (domain.Document, error)
	Chunks(ctx context.Context, id string) ([]domain.Chunk, error)
	DeleteDocument(ctx context.Context, id string) error
	Ask(ctx context.Context, q pipeline.Query) (pipeline.Response, error)
	AskGeneral(ctx context.Context, q pipeline.GeneralQuery) (pipeline.Response, error)
	History(ctx context.Context, userID string, documentID *string) ([]domain.ConversationEntry, error)
}

var _ Service = (*pipeline.Pipeline)(nil)

type Options struct {
	Address      string
	BodyLimit    string
	AllowOrigins []string
	// DefaultLevel applies when a chat request carries no user_level_rate.
	DefaultLevel int
}

// NewEcho builds the router. reg may be nil, in which case /metrics is not served.
func NewEcho(svc Service, reg *prometheus.Registry, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}
	origins := opts.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))
	e.HTTPErrorHandler = errorHandler(log.New(log.Writer(), "[HTTP] ", log.LstdFlags))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if reg != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}

	api := e.Group("/api")
	(&DocumentsHandler{Svc: svc}).Register(api.Group("/documents"))
	(&ChatHandler{Svc: svc, DefaultLevel: opts.DefaultLevel}).Register(api.Group("/chat"))
	return e
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, e *echo.Echo, addr string) error {
	if addr == "" {
		addr = ":8000"
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", addr)
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
