package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/drallgood/bookrequest/internal/api/readarr"
	"github.com/drallgood/bookrequest/internal/config"
	"github.com/drallgood/bookrequest/internal/logger"
	"github.com/drallgood/bookrequest/internal/models"
	"github.com/drallgood/bookrequest/internal/request"
	"github.com/drallgood/bookrequest/internal/settings"
)

// maxBodyBytes bounds request bodies; a lookup record with all its editions is the largest
const maxBodyBytes = 1 << 20

// BookService is what the handlers need from the search service
type BookService interface {
	Search(ctx context.Context, ebooks, audio config.Instance, term string) ([]models.UnifiedSearchItem, error)
	EnsureRequested(ctx context.Context, name models.Backend, inst config.Instance, book *models.LookupRecord, existingID *int) (request.Outcome, error)
	TestConnectivity(ctx context.Context, name models.Backend, inst config.Instance) (*readarr.SystemStatus, error)
	ResolveDefaults(ctx context.Context, name models.Backend, inst config.Instance) (readarr.Defaults, error)
}

// SettingsStore loads and saves instance settings
type SettingsStore interface {
	Load(ctx context.Context) (*settings.Settings, error)
	Save(ctx context.Context, s *settings.Settings) error
}

// DefaultsCache forgets resolved defaults for an instance base URL
type DefaultsCache interface {
	Invalidate(baseURL string)
}

// Handler provides the HTTP handlers of the JSON API
type Handler struct {
	service  BookService
	settings SettingsStore
	defaults DefaultsCache
	logger   *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(service BookService, store SettingsStore, log *logger.Logger) *Handler {
	return &Handler{
		service:  service,
		settings: store,
		logger:   log,
	}
}

// WithDefaultsCache makes settings saves drop cached defaults of the affected instances
func (h *Handler) WithDefaultsCache(c DefaultsCache) *Handler {
	h.defaults = c
	return h
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// RequestBody is the body of POST /api/request
type RequestBody struct {
	Instance   string               `json:"instance"`
	Book       *models.LookupRecord `json:"book,omitempty"`
	ExistingID *int                 `json:"existingId,omitempty"`
}

// RequestResult is returned by POST /api/request
type RequestResult struct {
	Instance string          `json:"instance"`
	Outcome  request.Outcome `json:"outcome"`
}

// writeJSONResponse writes a JSON response
func (h *Handler) writeJSONResponse(w http.ResponseWriter, statusCode int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode JSON response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// writeErrorResponse writes an error response
func (h *Handler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSONResponse(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeSuccessResponse writes a success response
func (h *Handler) writeSuccessResponse(w http.ResponseWriter, data interface{}) {
	h.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeServiceError maps an error from the service to a status code
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusForError(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", map[string]interface{}{"path": r.URL.Path, "error": err.Error()})
	} else {
		log.Warn("Request rejected", map[string]interface{}{"path": r.URL.Path, "error": err.Error()})
	}
	h.writeErrorResponse(w, status, err.Error())
}

// StatusForError returns the HTTP status for an error: caller and configuration
// errors are 400, backend failures 502
func StatusForError(err error) int {
	var (
		cfgErr    *config.ConfigError
		remoteErr *readarr.RemoteError
	)
	switch {
	case errors.As(err, &cfgErr),
		errors.Is(err, request.ErrBookRequired),
		errors.Is(err, request.ErrInvalidExistingID):
		return http.StatusBadRequest
	case errors.As(err, &remoteErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) loadSettings(w http.ResponseWriter, r *http.Request) (*settings.Settings, bool) {
	s, err := h.settings.Load(r.Context())
	if err != nil {
		h.logger.Error("Failed to load settings", map[string]interface{}{"error": err.Error()})
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to load settings")
		return nil, false
	}
	return s, true
}

func (h *Handler) instanceParam(w http.ResponseWriter, r *http.Request) (models.Backend, bool) {
	b, ok := models.ParseBackend(r.URL.Query().Get("instance"))
	if !ok {
		h.writeErrorResponse(w, http.StatusBadRequest, "instance must be ebooks or audiobooks")
	}
	return b, ok
}

// Search handles GET /api/search?q=
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s, ok := h.loadSettings(w, r)
	if !ok {
		return
	}

	items, err := h.service.Search(r.Context(), s.Ebooks, s.Audiobooks, r.URL.Query().Get("q"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccessResponse(w, items)
}

// Request handles POST /api/request
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var body RequestBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	backend, ok := models.ParseBackend(body.Instance)
	if !ok {
		h.writeErrorResponse(w, http.StatusBadRequest, "instance must be ebooks or audiobooks")
		return
	}
	s, ok := h.loadSettings(w, r)
	if !ok {
		return
	}

	outcome, err := h.service.EnsureRequested(r.Context(), backend, s.Instance(backend), body.Book, body.ExistingID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccessResponse(w, RequestResult{Instance: string(backend), Outcome: outcome})
}

// Settings handles GET and PUT /api/settings
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s, ok := h.loadSettings(w, r)
		if !ok {
			return
		}
		h.writeSuccessResponse(w, s.Masked())
	case http.MethodPut:
		h.saveSettings(w, r)
	default:
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *Handler) saveSettings(w http.ResponseWriter, r *http.Request) {
	var incoming settings.Settings
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&incoming); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	current, ok := h.loadSettings(w, r)
	if !ok {
		return
	}

	// a masked key sent back unchanged means "keep the stored key"
	keep := func(in, cur config.Instance) config.Instance {
		if in.APIKey != "" && in.APIKey == cur.Masked().APIKey {
			in.APIKey = cur.APIKey
		}
		return in
	}
	incoming.Ebooks = keep(incoming.Ebooks, current.Ebooks)
	incoming.Audiobooks = keep(incoming.Audiobooks, current.Audiobooks)

	if err := h.settings.Save(r.Context(), &incoming); err != nil {
		if errors.Is(err, settings.ErrReadOnly) {
			h.writeErrorResponse(w, http.StatusConflict, "Settings are read-only")
			return
		}
		h.logger.Error("Failed to save settings", map[string]interface{}{"error": err.Error()})
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}
	if h.defaults != nil {
		for _, url := range []string{
			current.Ebooks.BaseURL, current.Audiobooks.BaseURL,
			incoming.Ebooks.BaseURL, incoming.Audiobooks.BaseURL,
		} {
			if url != "" {
				h.defaults.Invalidate(url)
			}
		}
	}
	h.writeSuccessResponse(w, incoming.Normalize().Masked())
}

// TestInstance handles POST /api/settings/test?instance=
func (h *Handler) TestInstance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	backend, ok := h.instanceParam(w, r)
	if !ok {
		return
	}
	s, ok := h.loadSettings(w, r)
	if !ok {
		return
	}

	status, err := h.service.TestConnectivity(r.Context(), backend, s.Instance(backend))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccessResponse(w, status)
}

// Defaults handles GET /api/settings/defaults?instance=
func (h *Handler) Defaults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	backend, ok := h.instanceParam(w, r)
	if !ok {
		return
	}
	s, ok := h.loadSettings(w, r)
	if !ok {
		return
	}

	d, err := h.service.ResolveDefaults(r.Context(), backend, s.Instance(backend))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccessResponse(w, d)
}
