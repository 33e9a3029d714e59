// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package admin

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xplhald/xplhald/pkg/log"
)

// MetricsServer serves the Prometheus /metrics endpoint, grounded on the
// teacher's gorilla/mux route registration plus gorilla/handlers
// logging/compression/recovery middleware stack in cmd/cc-backend/main.go.
type MetricsServer struct {
	httpServer *http.Server
}

// NewMetricsServer builds the router and HTTP server for addr, without
// starting to listen.
func NewMetricsServer(addr string) *MetricsServer {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))

	logged := handlers.CustomLoggingHandler(io.Discard, r, func(_ io.Writer, params handlers.LogFormatterParams) {
		if strings.HasPrefix(params.Request.RequestURI, "/metrics") {
			log.Debugf("%s %s (%d, %dms)", params.Request.Method, params.URL.RequestURI(),
				params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
		}
	})

	return &MetricsServer{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      logged,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Serve blocks, serving metrics until Shutdown is called.
func (s *MetricsServer) Serve() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
