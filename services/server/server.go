// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the watch session over HTTP: a lossy SSE event
// stream for live observation and the pipeline reports as the durable
// source of truth.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/DepScope/services/pipeline"
	"github.com/AleutianAI/DepScope/services/stream"
)

// keepAliveInterval paces SSE comments during quiet poll intervals.
const keepAliveInterval = 15 * time.Second

// shutdownGrace bounds how long Run waits for in-flight requests.
const shutdownGrace = 5 * time.Second

// Server is the HTTP surface of a watch session.
type Server struct {
	engine *gin.Engine
	bus    *stream.Broadcaster
	orch   *pipeline.Orchestrator
}

// New creates the server and registers its routes.
func New(bus *stream.Broadcaster, orch *pipeline.Orchestrator) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, bus: bus, orch: orch}

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/api/events", s.handleEvents)
	engine.GET("/api/reports", s.handleReports)
	engine.GET("/api/reports/:package", s.handleReport)
	return s
}

// Handler returns the underlying http.Handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is canceled, then drains in-flight requests.
// Cancellation is a clean shutdown and returns nil.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("http server stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"subscribers": s.bus.SubscriberCount(),
	})
}

// handleEvents streams broadcast events over SSE until the client
// disconnects. An optional ?types=a,b query narrows the subscription. The
// stream is lossy for slow clients; /api/reports is the source of truth.
func (s *Server) handleEvents(c *gin.Context) {
	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		c.String(http.StatusInternalServerError, "streaming not supported")
		return
	}

	sub := s.bus.Subscribe(stream.DefaultSubscriberBuffer, parseTypes(c.Query("types"))...)
	defer s.bus.Unsubscribe(sub)

	// Confirm the stream before the first event arrives.
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				return
			}
		case event := <-sub.Events():
			if err := writer.WriteEvent(event); err != nil {
				slog.Debug("sse write failed, dropping client", "error", err)
				return
			}
		}
	}
}

func (s *Server) handleReports(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Reports())
}

func (s *Server) handleReport(c *gin.Context) {
	report, ok := s.orch.Report(c.Param("package"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report for package"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func parseTypes(raw string) []stream.Type {
	if raw == "" {
		return nil
	}
	var types []stream.Type
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			types = append(types, stream.Type(part))
		}
	}
	return types
}
