// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package server implements the TCP/HTTP server (C6): a single-port
// listener that sniffs the first byte of every accepted connection to
// dispatch to the XML adapter, the JSON adapter, or an HTTP sub-server,
// the latter built on gorilla/mux the way the teacher codebase wires
// its own REST surface.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/indigo-astronomy/indigo-bus/internal/blob"
	"github.com/indigo-astronomy/indigo-bus/internal/bus"
	"github.com/indigo-astronomy/indigo-bus/internal/jsonproto"
	"github.com/indigo-astronomy/indigo-bus/internal/xmlproto"
	"github.com/indigo-astronomy/indigo-bus/pkg/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the server's single listening socket and timeouts.
type Config struct {
	// Addr is the listen address, e.g. ":7624". Port 0 binds an
	// ephemeral port (§4.6, §6.1).
	Addr string

	// ReadTimeout bounds how long a worker waits for a complete frame
	// before closing the connection (§5; default >= 30s).
	ReadTimeout time.Duration
	// WriteTimeout bounds blocking writes before the worker drops the
	// client (§5; default ~5s).
	WriteTimeout time.Duration

	// AcceptRate/AcceptBurst throttle new connection acceptance; backed
	// by golang.org/x/time/rate, guarding against accept-loop
	// exhaustion from a misbehaving or hostile peer flood.
	AcceptRate  rate.Limit
	AcceptBurst int

	Resources *ResourceTable
}

func (c *Config) setDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.AcceptRate <= 0 {
		c.AcceptRate = 200
	}
	if c.AcceptBurst <= 0 {
		c.AcceptBurst = 50
	}
	if c.Resources == nil {
		c.Resources = &ResourceTable{}
	}
}

// Server is the single-port TCP/HTTP/WebSocket listener.
type Server struct {
	cfg     Config
	bus     *bus.Bus
	blobs   *blob.Cache
	limiter *rate.Limiter

	ln net.Listener
	wg sync.WaitGroup
}

// New constructs a Server. It does not start listening until Start.
func New(cfg Config, b *bus.Bus, blobs *blob.Cache) *Server {
	cfg.setDefaults()
	return &Server{
		cfg:     cfg,
		bus:     b,
		blobs:   blobs,
		limiter: rate.NewLimiter(cfg.AcceptRate, cfg.AcceptBurst),
	}
}

// Addr returns the bound address; only valid after Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start binds the listener and begins accepting connections in the
// background. Returns once the listener is bound so the caller can
// read back the actual port (relevant when Config.Addr requests an
// ephemeral port).
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln

	log.Infof("server: listening on %s", ln.Addr())

	s.wg.Add(1)
	go s.acceptLoop(ctx)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}

		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				if s.bus.Draining() {
					return
				}
				log.Warnf("server: accept error: %v", err)
				continue
			}
		}

		if s.bus.Draining() {
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn implements C6's first-byte dispatch table.
func (s *Server) handleConn(conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	pc := newPeekedConn(conn)

	first, err := pc.peekByte()
	if err != nil {
		conn.Close()
		return
	}

	switch first {
	case '<':
		defer conn.Close()
		xmlproto.ServeConn(s.bus, conn.RemoteAddr().String(), pc, s.blobs)
	case '{':
		defer conn.Close()
		jsonproto.ServeConn(s.bus, conn.RemoteAddr().String(), pc, false)
	case 'G', 'P':
		s.serveHTTP(pc)
	default:
		conn.Close()
	}
}

// serveHTTP hands the peeked connection to a real *http.Server via
// onceListener, so the HTTP branch gets gorilla/mux routing, gorilla/
// handlers middleware, and the stdlib's request parsing instead of a
// hand-rolled HTTP parser — only XML and JSON get bespoke parsers, per
// §4.6.
func (s *Server) serveHTTP(conn net.Conn) {
	defer conn.Close()

	ol := newOnceListener(conn)
	defer ol.Close()

	hs := &http.Server{
		Handler:      s.buildRouter(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	hs.Serve(ol)
}

func (s *Server) buildRouter() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", rootHandler(s.bus)).Methods(http.MethodGet)
	r.HandleFunc("/blob/{rest:.+}", blobGetHandler(s.blobs)).Methods(http.MethodGet)
	r.HandleFunc("/blob/{rest:.+}", blobPutHandler(s.blobs)).Methods(http.MethodPut)
	r.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)
	r.Handle("/metrics", promhttp.Handler())

	notFound := func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }
	r.PathPrefix("/").HandlerFunc(s.cfg.Resources.Handler(notFound))

	return handlers.CompressHandler(handlers.RecoveryHandler()(r))
}

// Shutdown marks the bus as draining, closes the listener (so no new
// connections are accepted) and waits for in-flight workers to drain,
// bounded by ctx (§4.7 Shutdown).
func (s *Server) Shutdown(ctx context.Context) error {
	s.bus.BeginShutdown()
	if s.ln != nil {
		s.ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
