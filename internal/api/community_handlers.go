package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/domu/internal/community"
	"github.com/onnwee/domu/internal/geo"
	"github.com/onnwee/domu/internal/middleware"
	"github.com/onnwee/domu/internal/validate"
)

// MaxRequestBodyBytes bounds the size of a registration payload.
const MaxRequestBodyBytes = 64 << 10

// CommunityRegistry is the registry surface served over HTTP.
type CommunityRegistry interface {
	List(ctx context.Context) []community.Record
	GetByID(ctx context.Context, id string) (community.Record, bool)
	RegisterCommunity(ctx context.Context, in community.Input) (community.Record, error)
	RegisterSelection(ctx context.Context, id string) (community.Record, bool, error)
	Stats(ctx context.Context) community.Stats
	MapMarkers(ctx context.Context, precision int) []community.Marker
}

// CommunityHandlers serves the /communities routes.
type CommunityHandlers struct {
	registry CommunityRegistry
}

// NewCommunityHandlers creates handlers over registry.
func NewCommunityHandlers(registry CommunityRegistry) *CommunityHandlers {
	return &CommunityHandlers{registry: registry}
}

// ListResponse is the body of GET /communities.
type ListResponse struct {
	Communities []community.Record `json:"communities"`
}

// MapResponse is the body of GET /communities/map.
type MapResponse struct {
	Markers []community.Marker `json:"markers"`
}

// Register mounts the community routes on mux.
func (h *CommunityHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /communities", h.List)
	mux.HandleFunc("POST /communities", h.RegisterCommunity)
	mux.HandleFunc("GET /communities/stats", h.Stats)
	mux.HandleFunc("GET /communities/map", h.Map)
	mux.HandleFunc("GET /communities/{id}", h.Get)
	mux.HandleFunc("POST /communities/{id}/selections", h.RegisterSelection)
}

// IsWriteRoute reports whether r targets a registry write. It runs ahead of
// the mux, so it matches on the escaped path: an id holding "%2F" is still a
// single {id} segment.
func IsWriteRoute(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	path := r.URL.EscapedPath()
	if path == "/communities" {
		return true
	}
	_, ok := selectionID(path)
	return ok
}

// List handles GET /communities.
func (h *CommunityHandlers) List(w http.ResponseWriter, r *http.Request) {
	records := h.registry.List(r.Context())
	if records == nil {
		records = []community.Record{}
	}
	writeJSON(w, r, http.StatusOK, ListResponse{Communities: records})
}

// Get handles GET /communities/{id}.
func (h *CommunityHandlers) Get(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.registry.GetByID(r.Context(), r.PathValue("id"))
	if !ok {
		writeCodedError(w, r, http.StatusNotFound, ErrCodeNotFound, "Community not found")
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// RegisterCommunity handles POST /communities. The body is a partial
// community; fields left out keep their stored values.
func (h *CommunityHandlers) RegisterCommunity(w http.ResponseWriter, r *http.Request) {
	in, status, code, msg := decodeInput(w, r)
	if code != "" {
		writeCodedError(w, r, status, code, msg)
		return
	}
	if msg := validateInput(&in); msg != "" {
		writeCodedError(w, r, http.StatusBadRequest, ErrCodeValidation, msg)
		return
	}

	rec, err := h.registry.RegisterCommunity(r.Context(), in)
	if err != nil {
		h.writeStorageError(w, r, "failed to register community", err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// RegisterSelection handles POST /communities/{id}/selections.
func (h *CommunityHandlers) RegisterSelection(w http.ResponseWriter, r *http.Request) {
	rec, ok, err := h.registry.RegisterSelection(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStorageError(w, r, "failed to register selection", err)
		return
	}
	if !ok {
		writeCodedError(w, r, http.StatusNotFound, ErrCodeNotFound, "Community not found")
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// Stats handles GET /communities/stats.
func (h *CommunityHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.registry.Stats(r.Context()))
}

// Map handles GET /communities/map?precision=N.
func (h *CommunityHandlers) Map(w http.ResponseWriter, r *http.Request) {
	precision := geo.DefaultPrecision
	if raw := r.URL.Query().Get("precision"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 1 || p > geo.MaxPrecision {
			writeCodedError(w, r, http.StatusBadRequest, ErrCodeValidation,
				fmt.Sprintf("precision must be an integer between 1 and %d", geo.MaxPrecision))
			return
		}
		precision = p
	}
	writeJSON(w, r, http.StatusOK, MapResponse{Markers: h.registry.MapMarkers(r.Context(), precision)})
}

func (h *CommunityHandlers) writeStorageError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	attrs := []any{"error", err, "read_failure", errors.Is(err, community.ErrStorageRead)}
	if key := middleware.GetIdempotencyKey(r.Context()); key != "" {
		attrs = append(attrs, "idempotency_key", key)
	}
	slog.ErrorContext(r.Context(), msg, attrs...)
	writeCodedError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Community registry storage failed")
}

// decodeInput reads a JSON object body. A non-empty code means the request
// must be rejected with status and msg.
func decodeInput(w http.ResponseWriter, r *http.Request) (in community.Input, status int, code, msg string) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return in, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "Request body too large"
		}
		return in, http.StatusBadRequest, ErrCodeBadRequest, "Failed to read request body"
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return in, http.StatusBadRequest, ErrCodeBadRequest, "Request body must be a JSON object"
	}
	if err := json.Unmarshal(body, &in); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return in, http.StatusBadRequest, ErrCodeValidation, typeErr.Field + " must be a string"
		}
		return in, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body"
	}
	return in, 0, "", ""
}

// validateInput checks length limits and replaces present strings with their
// trimmed form. It returns a message for the first violation.
func validateInput(in *community.Input) string {
	if in.ID != nil {
		id, err := validate.CommunityID(*in.ID)
		switch {
		case errors.Is(err, validate.ErrEmpty):
			// Blank ids fall back to a derived id.
			in.ID = nil
		case err != nil:
			return "id: " + err.Error()
		default:
			in.ID = &id
		}
	}

	fields := []struct {
		name string
		val  **string
	}{
		{"name", &in.Name},
		{"address", &in.Address},
		{"commune", &in.Commune},
		{"city", &in.City},
		{"postalCode", &in.PostalCode},
		{"towerLabel", &in.TowerLabel},
		{"source", &in.Source},
		{"status", &in.Status},
	}
	for _, f := range fields {
		if *f.val == nil {
			continue
		}
		v, err := validate.FreeText(**f.val)
		if err != nil {
			return f.name + ": " + err.Error()
		}
		*f.val = &v
	}
	return ""
}

// selectionID extracts {id} from /communities/{id}/selections.
func selectionID(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/communities/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/selections")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
