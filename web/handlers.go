package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ghyeongl/freeze/engine"
)

// pageSize is the number of snapshots per listing page.
const pageSize = 20

// snapshotPage is the paginated listing response.
type snapshotPage struct {
	Snapshots []engine.Snapshot `json:"snapshots"`
	Page      int               `json:"page"`
	Pages     int               `json:"pages"`
	Total     int               `json:"total"`
}

// saveRequest is the POST /api/snapshots body.
type saveRequest struct {
	Path string `json:"path"`
}

// restoreRequest is the POST /api/snapshots/{checksum}/restore body.
type restoreRequest struct {
	Path string `json:"path"`
}

// exportRequest is the POST /api/snapshots/{checksum}/export body.
type exportRequest struct {
	Dest string `json:"dest"`
}

// diffRequest is the POST /api/diff body. Either side is a checksum prefix
// or the literal "current" paired with a path.
type diffRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Path   string `json:"path,omitempty"`
}

// exclusionRequest is the POST /api/exclusions body.
type exclusionRequest struct {
	Pattern string `json:"pattern"`
	Type    string `json:"type"`
}

// countResponse reports how many files an operation touched.
type countResponse struct {
	Files int `json:"files"`
}

// handleListSnapshots handles GET /api/snapshots?path=<dir>&page=<n>
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	l := s.log
	var (
		snaps []engine.Snapshot
		err   error
	)
	if dir := r.URL.Query().Get("path"); dir != "" {
		snaps, err = s.mgr.ListUnder(dir)
	} else {
		snaps, err = s.mgr.List()
	}
	if err != nil {
		l.Error("list snapshots failed", "err", err)
		writeError(w, err)
		return
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			http.Error(w, "invalid page", http.StatusBadRequest)
			return
		}
		page = n
	}

	total := len(snaps)
	pages := (total + pageSize - 1) / pageSize
	if pages == 0 {
		pages = 1
	}
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	writeJSON(w, snapshotPage{
		Snapshots: snaps[start:end],
		Page:      page,
		Pages:     pages,
		Total:     total,
	})
}

// handleCreateSnapshot handles POST /api/snapshots
func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	l := s.log
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		http.Error(w, "path required", http.StatusBadRequest)
		return
	}
	l.Info("HTTP save", "path", req.Path)

	snap, err := s.mgr.Save(req.Path)
	if err != nil {
		l.Error("save failed", "path", req.Path, "err", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, snap)
}

// handleClearSnapshots handles DELETE /api/snapshots?path=<dir> or ?all=true
func (s *Server) handleClearSnapshots(w http.ResponseWriter, r *http.Request) {
	l := s.log
	all := r.URL.Query().Get("all") == "true"
	path := r.URL.Query().Get("path")
	if !all && path == "" {
		http.Error(w, "path or all=true required", http.StatusBadRequest)
		return
	}
	l.Info("HTTP clear", "path", path, "all", all)

	stats, err := s.mgr.Clear(path, all)
	if err != nil {
		l.Error("clear failed", "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, stats)
}

// handleSearch handles GET /api/snapshots/search?q=<pattern>
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		http.Error(w, "q required", http.StatusBadRequest)
		return
	}
	results, err := s.mgr.Search(q)
	if err != nil {
		s.log.Error("search failed", "q", q, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, results)
}

// handleViewSnapshot handles GET /api/snapshots/{checksum}
func (s *Server) handleViewSnapshot(w http.ResponseWriter, r *http.Request) {
	sum := mux.Vars(r)["checksum"]
	view, err := s.mgr.View(sum)
	if err != nil {
		s.log.Warn("view failed", "checksum", sum, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, view)
}

// handleSnapshotContent handles GET /api/snapshots/{checksum}/content and
// streams the raw blob of a single-file checksum.
func (s *Server) handleSnapshotContent(w http.ResponseWriter, r *http.Request) {
	sum := mux.Vars(r)["checksum"]
	full, err := s.mgr.ResolveGlobalPrefix(sum)
	if err != nil {
		writeError(w, err)
		return
	}
	rc, err := s.mgr.OpenBlob(full)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warn("content stream aborted", "checksum", full, "err", err)
	}
}

// handleRestoreSnapshot handles POST /api/snapshots/{checksum}/restore
func (s *Server) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	l := s.log
	sum := mux.Vars(r)["checksum"]
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		http.Error(w, "path required", http.StatusBadRequest)
		return
	}
	l.Info("HTTP restore", "path", req.Path, "checksum", sum)

	n, err := s.mgr.Restore(req.Path, sum)
	if err != nil {
		l.Error("restore failed", "path", req.Path, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, countResponse{Files: n})
}

// handleExportSnapshot handles POST /api/snapshots/{checksum}/export
func (s *Server) handleExportSnapshot(w http.ResponseWriter, r *http.Request) {
	l := s.log
	sum := mux.Vars(r)["checksum"]
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Dest == "" {
		http.Error(w, "dest required", http.StatusBadRequest)
		return
	}
	l.Info("HTTP export", "checksum", sum, "dest", req.Dest)

	n, err := s.mgr.Export(sum, req.Dest)
	if err != nil {
		l.Error("export failed", "checksum", sum, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, countResponse{Files: n})
}

// handleDiff handles POST /api/diff
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	var req diffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Source == "" || req.Target == "" {
		http.Error(w, "source and target required", http.StatusBadRequest)
		return
	}

	src, err := diffSource(req.Source, req.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dst, err := diffSource(req.Target, req.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.mgr.Compare(src, dst)
	if err != nil {
		s.log.Warn("diff failed", "source", req.Source, "target", req.Target, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

// diffSource maps a request side to a ContentSource. The literal "current"
// selects the live file at path.
func diffSource(side, path string) (engine.ContentSource, error) {
	if side == "current" {
		if path == "" {
			return engine.ContentSource{}, errors.New("path required when comparing against current")
		}
		return engine.ContentSource{Path: path}, nil
	}
	return engine.ContentSource{Checksum: side}, nil
}

// handleCheck handles GET /api/check?path=<path>
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path required", http.StatusBadRequest)
		return
	}
	result, err := s.mgr.Check(path)
	if err != nil {
		s.log.Warn("check failed", "path", path, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

// handleInspect handles GET /api/inspect?path=<path>
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path required", http.StatusBadRequest)
		return
	}
	history, err := s.mgr.Inspect(path)
	if err != nil {
		s.log.Warn("inspect failed", "path", path, "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, history)
}

// handleListExclusions handles GET /api/exclusions
func (s *Server) handleListExclusions(w http.ResponseWriter, r *http.Request) {
	rules, err := s.mgr.ExclusionList()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, rules)
}

// handleAddExclusion handles POST /api/exclusions
func (s *Server) handleAddExclusion(w http.ResponseWriter, r *http.Request) {
	var req exclusionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pattern == "" {
		http.Error(w, "pattern required", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = engine.RuleGlob
	}
	if !engine.ValidRuleType(req.Type) {
		http.Error(w, "invalid rule type", http.StatusBadRequest)
		return
	}
	if err := s.mgr.ExclusionAdd(req.Pattern, req.Type); err != nil {
		s.log.Error("add exclusion failed", "pattern", req.Pattern, "err", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"pattern": req.Pattern, "type": req.Type})
}

// handleRemoveExclusion handles DELETE /api/exclusions/{pattern}
func (s *Server) handleRemoveExclusion(w http.ResponseWriter, r *http.Request) {
	pattern := mux.Vars(r)["pattern"]
	removed, err := s.mgr.ExclusionRemove(pattern)
	if err != nil {
		writeError(w, err)
		return
	}
	if !removed {
		http.Error(w, "pattern not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.mgr.GetStats()
	if err != nil {
		s.log.Error("stats failed", "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, stats)
}

// handleEvents handles GET /api/events (Server-Sent Events stream).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.mgr.Events().Subscribe()
	defer s.mgr.Events().Unsubscribe(ch)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			data, _ := json.Marshal(event)
			fmt.Fprintf(w, "data: %s\n\n", data) //nolint:errcheck
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n") //nolint:errcheck
			flusher.Flush()
		}
	}
}

// writeJSON writes v as a JSON response body.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// writeError maps engine error kinds to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrPathNotFound),
		errors.Is(err, engine.ErrSnapshotNotFound),
		errors.Is(err, engine.ErrChecksumNotFound),
		errors.Is(err, engine.ErrBlobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrAmbiguousChecksum):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}
