package a2a

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/consultpro/agents/pkg/jsonrpc"
	"github.com/consultpro/agents/pkg/telemetry"
)

const (
	MethodSend = "tasks/send"
	MethodGet  = "tasks/get"
)

type Handler struct {
	router    chi.Router
	card      *AgentCard
	service   *Service
	logger    *slog.Logger
	authToken string
}

type HandlerConfig struct {
	Card      *AgentCard
	Service   *Service
	Logger    *slog.Logger
	AuthToken string
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Card == nil {
		cfg.Card = DefaultCard("")
	}
	h := &Handler{
		card:      cfg.Card,
		service:   cfg.Service,
		logger:    cfg.Logger,
		authToken: cfg.AuthToken,
	}
	h.buildRouter()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) buildRouter() {
	r := chi.NewRouter()
	r.Get("/.well-known/agent.json", h.handleAgentCard)

	r.Group(func(r chi.Router) {
		if h.authToken != "" {
			r.Use(h.authMiddleware)
		}
		r.Group(func(r chi.Router) {
			r.Use(h.recoverRPC)
			r.Post("/a2a", h.handleJSONRPC)
			r.Post("/a2a/tasks/send", h.handleSend)
			r.Post("/a2a/tasks/get", h.handleGet)
		})
		r.Get("/a2a/tasks/{id}", h.handleGetTask)
		r.Get("/a2a/tasks", h.handleListTasks)
	})
	h.router = r
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header || subtle.ConstantTimeCompare([]byte(token), []byte(h.authToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverRPC turns a panic below it into a JSON-RPC internal error.
func (h *Handler) recoverRPC(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Error("a2a handler panic",
					slog.String("path", r.URL.Path),
					slog.String("err", fmt.Sprint(rec)),
				)
				h.writeRPC(w, jsonrpc.NewErrorResponse(nil, jsonrpc.CodeInternal, "Internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.card)
}

func (h *Handler) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	switch req.Method {
	case MethodSend:
		h.rpcSend(w, r, req)
	case MethodGet:
		h.rpcGet(w, req)
	default:
		h.writeRPC(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeMethodNotFound, "Method not found: "+req.Method))
	}
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	if req, ok := h.decode(w, r); ok {
		h.rpcSend(w, r, req)
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if req, ok := h.decode(w, r); ok {
		h.rpcGet(w, req)
	}
}

// decode reads and validates the envelope, answering the request itself when
// it is unusable.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (jsonrpc.Request, bool) {
	req, rpcErr := jsonrpc.Decode(r.Body)
	if rpcErr != nil {
		h.writeRPC(w, jsonrpc.Response{JSONRPC: jsonrpc.Version, Error: rpcErr})
		return req, false
	}
	if req.JSONRPC != jsonrpc.Version {
		h.writeRPC(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidRequest, "Invalid request"))
		return req, false
	}
	return req, true
}

type sendParams struct {
	ID      json.RawMessage `json:"id"`
	Message Message         `json:"message"`
}

type getParams struct {
	ID json.RawMessage `json:"id"`
}

func (h *Handler) rpcSend(w http.ResponseWriter, r *http.Request, req jsonrpc.Request) {
	var params sendParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			h.writeRPC(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, "Invalid params"))
			return
		}
	}
	taskID, err := idString(params.ID)
	if err != nil {
		h.writeRPC(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, "Invalid params"))
		return
	}

	task, err := h.service.Submit(r.Context(), taskID, params.Message)
	switch {
	case errors.Is(err, ErrEmptyMessage):
		h.writeRPC(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, "Message with parts required"))
	case errors.Is(err, ErrNoTextPart):
		h.writeRPC(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, "No text part found"))
	case err != nil:
		h.logger.Error("submitting task", slog.String("task_id", taskID), slog.String("err", err.Error()))
		h.writeRPC(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternal, "Internal error"))
	default:
		h.writeRPC(w, jsonrpc.NewResponse(req.ID, task))
	}
}

func (h *Handler) rpcGet(w http.ResponseWriter, req jsonrpc.Request) {
	var params getParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			h.writeRPC(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, "Invalid params"))
			return
		}
	}
	id, err := idString(params.ID)
	if err != nil {
		h.writeRPC(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, "Invalid params"))
		return
	}

	task, err := h.service.Get(id)
	if err != nil {
		h.writeRPC(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeTaskNotFound, "Task not found"))
		return
	}
	h.writeRPC(w, jsonrpc.NewResponse(req.ID, task))
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Task not found"})
		return
	}
	writeJSON(w, http.StatusOK, viewOf(task))
}

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.service.List()
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, viewOf(t))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) writeRPC(w http.ResponseWriter, resp jsonrpc.Response) {
	if resp.Error != nil {
		telemetry.Metrics.RPCErrorsTotal.WithLabelValues("a2a", strconv.Itoa(resp.Error.Code)).Inc()
	}
	jsonrpc.Write(w, resp)
}

// idString accepts a task id given as a JSON string or number. Absent and
// null ids come back empty.
func idString(raw json.RawMessage) (string, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return "", nil
	}
	if s[0] == '"' {
		var out string
		if err := json.Unmarshal(raw, &out); err != nil {
			return "", err
		}
		return out, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("a2a: task id must be a string or number: %w", err)
	}
	return n.String(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
