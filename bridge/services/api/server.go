/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package api

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
)

var logger = logging.MustGetLogger("api")

const shutdownTimeout = 5 * time.Second

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Server exposes the local stores over HTTP.
// It implements ifrit.Runner.
type Server struct {
	address string
	stores  *driver.Stores
	engine  *gin.Engine
	now     func() time.Time
	newID   func() (string, error)
}

// NewServer returns a server listening on address. If gatherer is nil, /metrics is not served.
func NewServer(address string, stores *driver.Stores, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		address: address,
		stores:  stores,
		now:     time.Now,
		newID:   newID,
	}
	s.engine = s.routes(gatherer)
	return s
}

// Handler returns the http.Handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes(gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/transactions", s.registerTransaction)
		v1.GET("/transactions", s.queryTransactions)
		v1.GET("/transactions/:hash", s.getTransaction)

		v1.POST("/withdrawals", s.registerWithdrawal)
		v1.GET("/withdrawals", s.queryWithdrawals)
		v1.GET("/withdrawals/:id", s.getWithdrawal)

		v1.POST("/deposits", s.registerDeposit)
		v1.GET("/deposits", s.queryDeposits)
		v1.GET("/deposits/:id", s.getDeposit)

		v1.GET("/storage/:key", s.getStorageItem)
	}
	return r
}

// Run serves until a signal is received, then shuts down gracefully
func (s *Server) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	l, err := net.Listen("tcp", s.address)
	if err != nil {
		return errors.Wrapf(err, "failed listening on [%s]", s.address)
	}
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(l)
	}()
	logger.Infof("api listening on [%s]", l.Addr())
	close(ready)

	select {
	case err := <-served:
		return errors.Wrapf(err, "api server stopped")
	case sig := <-signals:
		logger.Infof("api shutting down on [%s]", sig)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return errors.Wrapf(err, "failed shutting down api server")
		}
		<-served
		return nil
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func abort(c *gin.Context, code int, err error) {
	if code >= http.StatusInternalServerError {
		logger.Errorf("%s %s failed: %s", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(code, Error{Error: err.Error()})
}

// storeError maps store errors to status codes
func storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, driver.ErrNotFound):
		abort(c, http.StatusNotFound, err)
	case errors.Is(err, driver.ErrStatusConflict):
		abort(c, http.StatusConflict, err)
	default:
		abort(c, http.StatusInternalServerError, err)
	}
}
