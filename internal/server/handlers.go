package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/viewgraph/internal/search"
	"github.com/leapstack-labs/viewgraph/internal/server/notifier"
	"github.com/leapstack-labs/viewgraph/internal/state"
	"github.com/leapstack-labs/viewgraph/pkg/catalog"
	"github.com/leapstack-labs/viewgraph/pkg/export"
	"github.com/leapstack-labs/viewgraph/pkg/lineage"
	"github.com/leapstack-labs/viewgraph/pkg/snapshot"
)

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Object string `json:"object,omitempty"`
}

// ObjectResponse is returned by GET /api/objects/{name}.
type ObjectResponse struct {
	Name string       `json:"name"`
	Kind catalog.Kind `json:"type"`
}

// ColumnsResponse is returned by GET /api/objects/{name}/columns.
type ColumnsResponse struct {
	Name    string           `json:"name"`
	Kind    catalog.Kind     `json:"type"`
	Columns []catalog.Column `json:"columns"`
}

// DependenciesResponse is returned by a non-recursive dependency lookup.
type DependenciesResponse struct {
	Name         string               `json:"name"`
	Kind         catalog.Kind         `json:"type"`
	Dependencies []lineage.Dependency `json:"dependencies"`
}

// DependentsResponse is returned by GET /api/objects/{name}/dependents.
type DependentsResponse struct {
	Name       string       `json:"name"`
	Kind       catalog.Kind `json:"type"`
	Dependents []string     `json:"dependents"`
	Transitive bool         `json:"transitive"`
}

// DeltaResponse is returned by GET /api/snapshots/delta.
type DeltaResponse struct {
	Catalog  string         `json:"catalog"`
	Previous *state.Summary `json:"previous"`
	Current  state.Summary  `json:"current"`
	Delta    snapshot.Delta `json:"delta"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.logger.Debug("failed to write response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeBadRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
}

// writeError maps engine errors to HTTP statuses: unknown objects are 404,
// an unreachable catalog is 503 and everything else is 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var nf *catalog.NotFoundError
	switch {
	case errors.As(err, &nf):
		s.writeJSON(w, http.StatusNotFound, errorResponse{
			Error:  fmt.Sprintf("object %q does not exist", nf.Name),
			Code:   "not_found",
			Object: nf.Name,
		})
	case errors.Is(err, catalog.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, catalog.ErrCatalogUnreachable):
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Code: "catalog_unreachable"})
	default:
		s.logger.Error("request failed", slog.String("error", err.Error()))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Code: "internal"})
	}
}

// intParam reads a non-negative integer query parameter.
func intParam(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, raw)
	}
	return n, nil
}

// boolParam reads a boolean query parameter; a bare "?key" counts as true.
func boolParam(r *http.Request, key string) (bool, error) {
	q := r.URL.Query()
	if !q.Has(key) {
		return false, nil
	}
	raw := q.Get(key)
	if raw == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
	return b, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"catalog": s.differ.CatalogID(),
	})
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", search.DefaultLimit)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	objects, err := s.builder.Catalog().ListObjects(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, search.Objects(objects, r.URL.Query().Get("q"), limit))
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	entry, err := s.builder.Resolve(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ObjectResponse{Name: entry.Name, Kind: entry.Kind})
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	entry, err := s.builder.Resolve(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	columns, err := s.builder.Catalog().Columns(r.Context(), entry.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ColumnsResponse{Name: entry.Name, Kind: entry.Kind, Columns: columns})
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	recursive, err := boolParam(r, "recursive")
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	depth, err := intParam(r, "depth", 0)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}

	if recursive {
		tree, err := s.traverser.Tree(r.Context(), name, depth)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, tree)
		return
	}

	entry, err := s.builder.Resolve(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	deps, err := s.traverser.Direct(r.Context(), entry.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, DependenciesResponse{Name: entry.Name, Kind: entry.Kind, Dependencies: deps})
}

func (s *Server) handleDependents(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	transitive, err := boolParam(r, "transitive")
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}

	entry, err := s.builder.Resolve(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// The reverse index is only complete after a whole-catalog build.
	if _, err := s.builder.BuildAll(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}

	resp := DependentsResponse{Name: entry.Name, Kind: entry.Kind, Transitive: transitive}
	if transitive {
		resp.Dependents = s.builder.Downstream(entry.Name)
	} else {
		resp.Dependents = s.builder.DependentsOf(entry.Name)
	}
	if resp.Dependents == nil {
		resp.Dependents = []string{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	depth, err := intParam(r, "depth", 0)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}

	res, err := s.exporter.Export(r.Context(), export.Request{Root: name, MaxDepth: depth, Format: format})
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", res.Filename()))
	w.Header().Set("X-Export-Nodes", strconv.Itoa(res.Nodes))
	w.Header().Set("X-Export-Edges", strconv.Itoa(res.Edges))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func (s *Server) handleDelta(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	curr, err := s.differ.Take(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var prev *snapshot.Snapshot
	if s.store != nil {
		prev, err = s.store.LatestSnapshot(ctx, curr.CatalogID)
		if err != nil && !errors.Is(err, state.ErrSnapshotNotFound) {
			s.writeError(w, err)
			return
		}
	}

	resp := DeltaResponse{
		Catalog: curr.CatalogID,
		Current: state.SummaryOf(curr),
		Delta:   snapshot.Compare(prev, curr),
	}
	if prev != nil {
		sum := state.SummaryOf(prev)
		resp.Previous = &sum
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.Refresh("api")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// handleEvents streams refresh and drift events as datastar signal patches
// until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	updates := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(updates)

	hello := notifier.Event{Type: "connected", Catalog: s.differ.CatalogID(), At: time.Now().UTC()}
	if err := sse.MarshalAndPatchSignals(map[string]any{"event": hello}); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-updates:
			if !ok {
				return
			}
			if err := sse.MarshalAndPatchSignals(map[string]any{"event": ev}); err != nil {
				_ = sse.ConsoleError(err)
				return
			}
		}
	}
}
