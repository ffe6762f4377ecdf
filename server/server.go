// Copyright 2025 Polyconn Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the connection layer over an admin HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/polyconn/polyconn/connectors/base"
	"github.com/polyconn/polyconn/connectors/catalog"
	"github.com/polyconn/polyconn/connectors/monitor"
	"github.com/polyconn/polyconn/connectors/registry"
	"github.com/polyconn/polyconn/shared/logger"
)

// Server wires the registry, monitor and catalog into HTTP handlers.
type Server struct {
	registry *registry.Registry
	monitor  *monitor.Monitor
	catalog  *catalog.Catalog
	log      *logger.Logger
	handler  http.Handler
	httpSrv  *http.Server
}

// Options configures New.
type Options struct {
	AllowedOrigins []string
}

// New builds the server and its route table.
func New(reg *registry.Registry, mon *monitor.Monitor, cat *catalog.Catalog, opts Options) *Server {
	s := &Server{
		registry: reg,
		monitor:  mon,
		catalog:  cat,
		log:      logger.New("server"),
	}

	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	r.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/api/v1/connections", s.handleListConnections).Methods("GET")
	r.HandleFunc("/api/v1/connections", s.handleCreateConnection).Methods("POST")
	r.HandleFunc("/api/v1/connections/{id}", s.handleGetConnection).Methods("GET")
	r.HandleFunc("/api/v1/connections/{id}", s.handleCloseConnection).Methods("DELETE")
	r.HandleFunc("/api/v1/connections/{id}/reconnect", s.handleReconnect).Methods("POST")
	r.HandleFunc("/api/v1/connections/{id}/health", s.handleConnectionHealth).Methods("GET")
	r.HandleFunc("/api/v1/connections/{id}/query", s.handleQuery).Methods("POST")
	r.HandleFunc("/api/v1/connections/{id}/ddl", s.handleDDL).Methods("POST")

	r.HandleFunc("/api/v1/catalog/resources", s.handleResources).Methods("GET")
	r.HandleFunc("/api/v1/catalog/tools", s.handleTools).Methods("GET")
	r.HandleFunc("/api/v1/tools/{name}/execute", s.handleExecuteTool).Methods("POST")

	r.HandleFunc("/api/v1/pool/stats", s.handlePoolStats).Methods("GET")
	r.HandleFunc("/api/v1/pool/resize", s.handlePoolResize).Methods("POST")

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	s.handler = c.Handler(r)

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("listening", map[string]interface{}{"addr": addr})

	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.registry.Stats()
	s.respond(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"live_connections": stats.Live,
		"monitor_running":  s.monitor.Running(),
		"timestamp":        time.Now().UTC(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]interface{}{
		"pool":        s.registry.Stats(),
		"connections": s.registry.MetricsSnapshots(),
	})
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.registry.List())
}

type createConnectionRequest struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Host     string                 `json:"host"`
	Port     int                    `json:"port,omitempty"`
	Database string                 `json:"database,omitempty"`
	Username string                 `json:"username,omitempty"`
	Password string                 `json:"password,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var req createConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ID == "" || req.Type == "" {
		s.respondError(w, http.StatusBadRequest, "id and type are required")
		return
	}

	desc := &base.Descriptor{
		Host:     req.Host,
		Port:     req.Port,
		Database: req.Database,
		Username: req.Username,
		Password: req.Password,
		Options:  req.Options,
	}

	id, err := s.registry.Create(r.Context(), req.ID, req.Type, desc)
	if err != nil {
		s.respondTaxonomy(w, err)
		return
	}
	s.respond(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	for _, summary := range s.registry.List() {
		if summary.ID == id {
			s.respond(w, http.StatusOK, summary)
			return
		}
	}
	s.respondError(w, http.StatusNotFound, "connection "+id+" not found")
}

func (s *Server) handleCloseConnection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.registry.Close(r.Context(), id); err != nil {
		s.respondTaxonomy(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"id": id, "status": "closed"})
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.registry.Reconnect(r.Context(), id); err != nil {
		s.respondTaxonomy(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"id": id, "status": "reconnected"})
}

func (s *Server) handleConnectionHealth(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	client, err := s.registry.Get(id)
	if err != nil {
		s.respondTaxonomy(w, err)
		return
	}
	s.respond(w, http.StatusOK, client.HealthCheck(r.Context()))
}

type statementRequest struct {
	Statement string                 `json:"statement"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req statementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	client, err := s.registry.Get(id)
	if err != nil {
		s.respondTaxonomy(w, err)
		return
	}

	result, err := client.RunQuery(r.Context(), req.Statement, req.Params)
	if err != nil {
		s.respondTaxonomy(w, err)
		return
	}
	s.respond(w, http.StatusOK, result)
}

func (s *Server) handleDDL(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req statementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	client, err := s.registry.Get(id)
	if err != nil {
		s.respondTaxonomy(w, err)
		return
	}

	if err := client.RunDDL(r.Context(), req.Statement); err != nil {
		s.respondTaxonomy(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.catalog.ListResources())
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.catalog.ListTools())
}

type executeToolRequest struct {
	ConnectionID string                 `json:"connection_id"`
	Params       map[string]interface{} `json:"params,omitempty"`
}

func (s *Server) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req executeToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.catalog.ExecuteTool(r.Context(), name, req.ConnectionID, req.Params)
	if err != nil {
		s.respondTaxonomy(w, err)
		return
	}
	s.respond(w, http.StatusOK, result)
}

func (s *Server) handlePoolStats(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.registry.Stats())
}

type resizeRequest struct {
	MaxConnections int `json:"max_connections"`
}

func (s *Server) handlePoolResize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.registry.Resize(req.MaxConnections); err != nil {
		s.respondTaxonomy(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]int{"max_connections": req.MaxConnections})
}

func (s *Server) respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("encode response", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, map[string]string{"error": message})
}

// respondTaxonomy maps taxonomy error codes onto HTTP statuses and keeps
// the code in the payload so clients can branch on it.
func (s *Server) respondTaxonomy(w http.ResponseWriter, err error) {
	code := base.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case base.CodeConnectionNotFound, base.CodeToolNotFound:
		status = http.StatusNotFound
	case base.CodeConnectionExists, base.CodeNotConnected:
		status = http.StatusConflict
	case base.CodeMaxConnections:
		status = http.StatusTooManyRequests
	case base.CodeUnknownClientType, base.CodeInvalidPoolSize:
		status = http.StatusBadRequest
	case base.CodeConnectionFailed, base.CodeQueryFailed, base.CodeDDLFailed, base.CodeRetryExhausted:
		status = http.StatusBadGateway
	}

	s.respond(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(code),
	})
}
