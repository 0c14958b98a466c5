// Package chi exposes the admin HTTP surface: command execution for
// debugging and operations, health and prometheus metrics.
package chi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shardsearch/internal/engine"
	"github.com/kailas-cloud/shardsearch/internal/reply"
)

// Server is the admin HTTP server.
type Server struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewServer creates the admin server.
func NewServer(eng *engine.Engine, logger *zap.Logger) *Server {
	return &Server{engine: eng, logger: logger}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/v1/command", s.handleCommand)
	r.Post("/v1/documents", s.handleSetDocument)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type commandRequest struct {
	DB   int      `json:"db"`
	Args []string `json:"args"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Args) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "args is required"})
		return
	}

	res := s.engine.Execute(req.DB, req.Args...)
	if errVal, ok := res.(reply.Error); ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": errVal.Message})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": renderValue(res)})
}

type setDocumentRequest struct {
	Key    string            `json:"key"`
	Fields map[string]string `json:"fields"`
}

func (s *Server) handleSetDocument(w http.ResponseWriter, r *http.Request) {
	var req setDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "key is required"})
		return
	}
	s.engine.SetDocument(req.Key, req.Fields)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// renderValue converts a reply tree into plain JSON-encodable values.
func renderValue(v reply.Value) any {
	switch tv := v.(type) {
	case reply.SimpleString:
		return string(tv)
	case reply.BulkString:
		return string(tv)
	case reply.Long:
		return int64(tv)
	case reply.Double:
		return float64(tv)
	case reply.Null:
		return nil
	case reply.Error:
		return map[string]string{"error": tv.Message}
	case reply.Array:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = renderValue(e)
		}
		return out
	case reply.Set:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = renderValue(e)
		}
		return out
	case reply.Map:
		out := make([]any, 0, len(tv)*2)
		for _, kv := range tv {
			out = append(out, renderValue(kv.Key), renderValue(kv.Val))
		}
		return out
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
