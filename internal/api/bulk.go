package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/SpanFreight/tracking/internal/metrics"
	"github.com/SpanFreight/tracking/internal/store"
)

type bulkDeleteRequest struct {
	ContainerIDs []int64 `json:"container_ids"`
}

type bulkDeleteResponse struct {
	SuccessCount int             `json:"success_count"`
	ErrorCount   int             `json:"error_count"`
	Deleted      []int64         `json:"deleted"`
	Failed       []store.Failure `json:"failed"`
	Message      string          `json:"message"`
}

type bulkStatusRequest struct {
	ContainerIDs []int64    `json:"container_ids"`
	Status       string     `json:"status"`
	Location     string     `json:"location"`
	Date         *time.Time `json:"date,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

type bulkStatusResponse struct {
	SuccessCount int             `json:"success_count"`
	ErrorCount   int             `json:"error_count"`
	Updated      []int64         `json:"updated"`
	Failed       []store.Failure `json:"failed"`
	Message      string          `json:"message"`
}

// bulkDeleteHandler deletes every listed container independently and
// reports the per-id outcome. Repeated ids are collapsed, keeping the first.
func (s *Server) bulkDeleteHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	reqID := requestIDFrom(r.Context())

	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.rejectBulk(w, "invalid request body: "+err.Error())
		return
	}

	_, maxIDs := s.settings()
	ids, err := normalizeIDs(req.ContainerIDs, maxIDs)
	if err != nil {
		s.rejectBulk(w, err.Error())
		return
	}

	res, err := s.store.DeleteMany(r.Context(), ids)
	if err != nil {
		slog.Error("bulk delete failed", "count", len(ids), "err", err, "request_id", reqID)
		if s.metrics != nil {
			s.metrics.BulkDeleteRejected(metrics.OutcomeError)
		}
		writeError(w, http.StatusInternalServerError, "failed to delete containers")
		return
	}

	reasons := make([]string, len(res.Failed))
	for i, f := range res.Failed {
		reasons[i] = f.Reason
	}
	if s.metrics != nil {
		s.metrics.BulkDelete(len(ids), len(res.Deleted), reasons)
	}
	slog.Info("bulk delete", "submitted", len(ids), "deleted", len(res.Deleted), "failed", len(res.Failed), "request_id", reqID)

	writeJSON(w, http.StatusOK, bulkDeleteResponse{
		SuccessCount: len(res.Deleted),
		ErrorCount:   len(res.Failed),
		Deleted:      res.Deleted,
		Failed:       res.Failed,
		Message:      bulkMessage(len(res.Deleted), len(res.Failed)),
	})
}

// bulkStatusHandler appends one status entry to every listed container.
// Ids are validated and collapsed the same way as for bulk delete.
func (s *Server) bulkStatusHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	reqID := requestIDFrom(r.Context())

	var req bulkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.rejectStatus(w, "invalid request body: "+err.Error())
		return
	}

	_, maxIDs := s.settings()
	ids, err := normalizeIDs(req.ContainerIDs, maxIDs)
	if err != nil {
		s.rejectStatus(w, err.Error())
		return
	}

	st := store.Status{Status: req.Status, Location: req.Location, Notes: req.Notes}
	if req.Date != nil {
		st.Date = *req.Date
	}
	res, err := s.store.AddStatusMany(r.Context(), ids, st)
	if errors.Is(err, store.ErrInvalid) {
		s.rejectStatus(w, err.Error())
		return
	}
	if err != nil {
		slog.Error("bulk status update failed", "count", len(ids), "err", err, "request_id", reqID)
		if s.metrics != nil {
			s.metrics.BulkStatusUpdate(metrics.OutcomeError, 0)
		}
		writeError(w, http.StatusInternalServerError, "failed to update containers")
		return
	}

	if s.metrics != nil {
		outcome := metrics.OutcomeNoneUpdated
		if len(res.Updated) > 0 {
			outcome = metrics.OutcomeUpdated
		}
		s.metrics.BulkStatusUpdate(outcome, len(res.Updated))
	}
	slog.Info("bulk status update", "submitted", len(ids), "updated", len(res.Updated), "failed", len(res.Failed),
		"status", req.Status, "request_id", reqID)

	msg := fmt.Sprintf("Updated status for %d %s.", len(res.Updated), plural(len(res.Updated)))
	if n := len(res.Failed); n > 0 {
		msg += fmt.Sprintf(" %d %s could not be updated.", n, plural(n))
	}
	writeJSON(w, http.StatusOK, bulkStatusResponse{
		SuccessCount: len(res.Updated),
		ErrorCount:   len(res.Failed),
		Updated:      res.Updated,
		Failed:       res.Failed,
		Message:      msg,
	})
}

func (s *Server) rejectStatus(w http.ResponseWriter, msg string) {
	if s.metrics != nil {
		s.metrics.BulkStatusUpdate(metrics.OutcomeRejected, 0)
	}
	writeError(w, http.StatusBadRequest, msg)
}

func (s *Server) rejectBulk(w http.ResponseWriter, msg string) {
	if s.metrics != nil {
		s.metrics.BulkDeleteRejected(metrics.OutcomeRejected)
	}
	writeError(w, http.StatusBadRequest, msg)
}

func normalizeIDs(raw []int64, maxIDs int) ([]int64, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("container_ids must be a non-empty list")
	}
	if maxIDs > 0 && len(raw) > maxIDs {
		return nil, fmt.Errorf("too many container ids: %d (max %d)", len(raw), maxIDs)
	}

	ids := make([]int64, 0, len(raw))
	seen := make(map[int64]bool, len(raw))
	for _, id := range raw {
		if id <= 0 {
			return nil, fmt.Errorf("invalid container id %d", id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

func bulkMessage(deleted, failed int) string {
	msg := fmt.Sprintf("Deleted %d %s.", deleted, plural(deleted))
	if failed > 0 {
		msg += fmt.Sprintf(" %d %s could not be deleted.", failed, plural(failed))
	}
	return msg
}

func plural(n int) string {
	if n == 1 {
		return "container"
	}
	return "containers"
}
