package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/flow"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/node"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/notification"
)

// CacheEntry is one cached bus value.
type CacheEntry struct {
	Service   string    `json:"service"`
	Path      string    `json:"path"`
	Value     any       `json:"value"`
	Revision  uint64    `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

// handleCache lists cached values, optionally for one service.
func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")

	snapshot := s.broker.Cache().Snapshot()
	entries := make([]CacheEntry, 0, len(snapshot))
	for addr, cv := range snapshot {
		if service != "" && addr.Service != service {
			continue
		}
		entries = append(entries, CacheEntry{
			Service:   addr.Service,
			Path:      addr.Path,
			Value:     cv.Value,
			Revision:  cv.Revision,
			UpdatedAt: cv.UpdatedAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Service != entries[j].Service {
			return entries[i].Service < entries[j].Service
		}
		return entries[i].Path < entries[j].Path
	})

	writeJSON(w, http.StatusOK, map[string]any{"values": entries, "count": len(entries)})
}

// handleServices lists the services present on the bus.
func (s *Server) handleServices(w http.ResponseWriter, _ *http.Request) {
	services := s.broker.ActiveServices()
	writeJSON(w, http.StatusOK, map[string]any{
		"connected": s.broker.IsConnected(),
		"services":  services,
		"count":     len(services),
	})
}

// handleKinds lists the registered node types.
func (s *Server) handleKinds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"kinds": node.Kinds()})
}

// handleGetFlows returns the deployed configuration.
func (s *Server) handleGetFlows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, flow.File{Nodes: s.flows.Configs()})
}

// handleDeployFlows replaces the running flow.
func (s *Server) handleDeployFlows(w http.ResponseWriter, r *http.Request) {
	var f flow.File
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.flows.Deploy(r.Context(), f.Nodes)
	if err != nil {
		if errors.Is(err, flow.ErrClosed) {
			writeUnavailable(w, err.Error())
			return
		}
		writeValidationError(w, err.Error())
		return
	}

	s.logger.Info("flow deployed via API",
		"subject", r.Context().Value(ctxKeySubject),
		"nodes", len(f.Nodes),
		"failed", len(result.Failed),
	)
	if s.flowsFile != "" {
		if err := flow.SaveFile(s.flowsFile, f.Nodes); err != nil {
			s.logger.Error("saving flows file failed", "path", s.flowsFile, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// handleListNodes lists the running nodes.
func (s *Server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	nodes := s.flows.Nodes()
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "count": len(nodes)})
}

// handleGetNode returns one node.
func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	info, err := s.flows.Node(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "node not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// inputRequest is the body of POST /nodes/{id}/input.
type inputRequest struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// handleNodeInput sends a message to a node.
func (s *Server) handleNodeInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id := chi.URLParam(r, "id")
	msg := node.NewMessage(req.Topic, req.Payload)
	if err := s.flows.Input(r.Context(), id, msg); err != nil {
		switch {
		case errors.Is(err, flow.ErrNodeNotFound):
			writeNotFound(w, "node not found")
		case errors.Is(err, node.ErrNoInput), errors.Is(err, node.ErrDisabled), errors.Is(err, node.ErrClosed):
			writeConflict(w, err.Error())
		case errors.Is(err, node.ErrInvalidPayload), isNotificationError(err):
			writeValidationError(w, err.Error())
		default:
			s.logger.Error("node input failed", "node_id", id, "error", err)
			writeInternalError(w, "node input failed")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"_msgid": msg.ID})
}

// handleNotification injects a notification directly.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeUnavailable(w, "bus not available")
		return
	}

	var n notification.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := n.Validate(); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if err := notification.Inject(r.Context(), s.bus, n); err != nil {
		s.logger.Warn("notification injection failed", "error", err)
		writeUnavailable(w, err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.NotificationsSent.WithLabelValues(n.Type.String()).Inc()
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"injected": n.String()})
}

// handleReconcile runs virtual device reconciliation.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	plan, err := s.flows.Reconcile(r.Context())
	if err != nil {
		if errors.Is(err, flow.ErrNotConnected) || errors.Is(err, flow.ErrNoReconciler) {
			writeUnavailable(w, err.Error())
			return
		}
		s.logger.Error("reconciliation failed", "error", err)
		writeInternalError(w, "reconciliation failed")
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func isNotificationError(err error) bool {
	return errors.Is(err, notification.ErrInvalidType) ||
		errors.Is(err, notification.ErrEmptyTitle) ||
		errors.Is(err, notification.ErrTitleTooLong) ||
		errors.Is(err, notification.ErrMessageTooLong)
}
