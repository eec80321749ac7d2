package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gorilla/mux"

	"github.com/SpanFreight/tracking/internal/store"
)

var statusLabels = map[string]string{
	store.StatusLoaded:     "Loaded",
	store.StatusDischarged: "Discharged",
	store.StatusEmptied:    "Emptied",
	store.StatusInYard:     "In Yard",
}

type containerRow struct {
	ID          int64
	Number      string
	Type        string
	Status      string
	StatusClass string
	Location    string
	LastUpdated string
}

type containersPageData struct {
	CSRFToken string
	Rows      []containerRow
}

// containerSummary is one entry of GET /api/containers.
type containerSummary struct {
	ID            int64  `json:"id"`
	Number        string `json:"container_number"`
	Type          string `json:"container_type"`
	CurrentStatus string `json:"current_status"`
	LastUpdated   string `json:"last_updated"`
	Location      string `json:"location"`
}

func summarize(c store.Container) containerSummary {
	cs := containerSummary{ID: c.ID, Number: c.Number, Type: c.Type}
	if c.Status != nil {
		cs.CurrentStatus = c.Status.Status
		cs.Location = c.Status.Location
		cs.LastUpdated = c.Status.Date.UTC().Format(time.RFC3339)
	}
	return cs
}

// containersPageHandler renders the container list with its selection
// checkboxes and bulk action bar.
func (s *Server) containersPageHandler(w http.ResponseWriter, r *http.Request) {
	containers, err := s.store.List(r.Context())
	if err != nil {
		slog.Error("listing containers", "err", err, "request_id", requestIDFrom(r.Context()))
		http.Error(w, "failed to load containers", http.StatusInternalServerError)
		return
	}
	s.recordCount(len(containers))

	token, _ := s.settings()
	data := containersPageData{CSRFToken: token, Rows: make([]containerRow, 0, len(containers))}
	for _, c := range containers {
		row := containerRow{ID: c.ID, Number: c.Number, Type: c.Type, Status: "No status", StatusClass: "none"}
		if c.Status != nil {
			row.Status = statusLabels[c.Status.Status]
			row.StatusClass = c.Status.Status
			row.Location = c.Status.Location
			row.LastUpdated = c.Status.Date.Local().Format("2006-01-02 15:04")
		}
		data.Rows = append(data.Rows, row)
	}

	var buf bytes.Buffer
	if err := containersPage.Execute(&buf, data); err != nil {
		slog.Error("rendering containers page", "err", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (s *Server) listContainers(w http.ResponseWriter, r *http.Request) {
	containers, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing containers: "+err.Error())
		return
	}
	s.recordCount(len(containers))

	result := make([]containerSummary, 0, len(containers))
	for _, c := range containers {
		result = append(result, summarize(c))
	}

	body, err := json.Marshal(result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encoding containers: "+err.Error())
		return
	}
	body = append(body, '\n')

	etag := `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func (s *Server) getContainer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	c, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type createContainerRequest struct {
	Number   string     `json:"container_number"`
	Type     string     `json:"container_type"`
	Status   string     `json:"status,omitempty"`
	Location string     `json:"location,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
	Notes    string     `json:"notes,omitempty"`
}

func (s *Server) createContainer(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req createContainerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	nc := store.NewContainer{Number: req.Number, Type: req.Type}
	if req.Status != "" {
		st := store.Status{Status: req.Status, Location: req.Location, Notes: req.Notes}
		if req.Date != nil {
			st.Date = *req.Date
		}
		nc.Initial = &st
	}

	c, err := s.store.Create(r.Context(), nc)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	slog.Info("container registered", "id", c.ID, "number", c.Number, "type", c.Type)

	writeJSON(w, http.StatusCreated, c)
}

type statusRequest struct {
	Status   string     `json:"status"`
	Location string     `json:"location"`
	Date     *time.Time `json:"date,omitempty"`
	Notes    string     `json:"notes,omitempty"`
}

func (s *Server) addStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	st := store.Status{Status: req.Status, Location: req.Location, Notes: req.Notes}
	if req.Date != nil {
		st.Date = *req.Date
	}
	if err := s.store.AddStatus(r.Context(), id, st); err != nil {
		writeStoreError(w, err)
		return
	}

	c, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	slog.Info("container status updated", "id", id, "status", c.Status.Status, "location", c.Status.Location)
	writeJSON(w, http.StatusOK, c)
}

type existsResponse struct {
	Exists bool   `json:"exists"`
	ID     int64  `json:"container_id,omitempty"`
	Type   string `json:"container_type,omitempty"`
}

func (s *Server) containerExists(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]

	c, err := s.store.FindByNumber(r.Context(), number)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, existsResponse{Exists: true, ID: c.ID, Type: c.Type})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusOK, existsResponse{Exists: false})
	default:
		writeStoreError(w, err)
	}
}

const (
	minSearchLen = 2
	searchLimit  = 10
)

// searchContainers answers number-prefix lookups for autocompletion.
func (s *Server) searchContainers(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(mux.Vars(r)["query"])
	result := make([]containerSummary, 0, searchLimit)
	if len(query) < minSearchLen {
		writeJSON(w, http.StatusOK, result)
		return
	}

	containers, err := s.store.Search(r.Context(), query, searchLimit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	for _, c := range containers {
		result = append(result, summarize(c))
	}
	writeJSON(w, http.StatusOK, result)
}

// deleteContainer handles the per-row delete form and redirects back to the
// list.
func (s *Server) deleteContainer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.store.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ContainerDeleted()
	}
	slog.Info("container deleted", "id", id, "request_id", requestIDFrom(r.Context()))

	http.Redirect(w, r, "/containers", http.StatusSeeOther)
}

func (s *Server) recordCount(n int) {
	if s.metrics != nil {
		s.metrics.SetContainerCount(n)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid container id")
		return 0, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "container not found")
	case errors.Is(err, store.ErrDuplicateNumber):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("store error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
