// Package api serves a read-only JSON view of negotiations, consensus
// records, status logs and endpoint boxes for auditors.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/panoramix/internal/boxchain"
	"github.com/zulandar/panoramix/internal/keys"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB       *gorm.DB
	Chain    *boxchain.Chain
	Verifier keys.Verifier
	Port     int
	Out      io.Writer
}

func (o StartOpts) check() error {
	if o.DB == nil {
		return fmt.Errorf("api: db is required")
	}
	if o.Chain == nil {
		return fmt.Errorf("api: box chain is required")
	}
	if o.Verifier == nil {
		return fmt.Errorf("api: verifier is required")
	}
	return nil
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, opts)
	return router, nil
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Audit API listening on http://localhost:%d/api\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
