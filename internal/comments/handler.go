package comments

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/inkwell-cms/inkwell/internal/platform/httpx"
	"github.com/inkwell-cms/inkwell/internal/shared"
)

// Handler exposes the comments API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountPostRoutes registers the routes nested under a post.
func (h *Handler) MountPostRoutes(r chi.Router) {
	r.Get("/", h.ListForPost)
	r.Post("/", h.Create)
}

// MountRoutes registers the comment-addressed routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

type commentRequest struct {
	Body string `json:"body" validate:"required,min=1,max=4000"`
}

func (h *Handler) ListForPost(w http.ResponseWriter, r *http.Request) {
	postID, err := parseID(r, "postID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid post id")
		return
	}
	list, err := h.service.ListForPost(r.Context(), shared.PrincipalFromContext(r.Context()), postID)
	if err != nil {
		h.respondError(w, r, "list comments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"comments": list})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	postID, err := parseID(r, "postID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid post id")
		return
	}
	var req commentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	comment, err := h.service.Create(r.Context(), shared.PrincipalFromContext(r.Context()), postID, req.Body)
	if err != nil {
		h.respondError(w, r, "create comment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, comment)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid comment id")
		return
	}
	var req commentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	comment, err := h.service.Update(r.Context(), shared.PrincipalFromContext(r.Context()), id, req.Body)
	if err != nil {
		h.respondError(w, r, "update comment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, comment)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid comment id")
		return
	}
	if err := h.service.Delete(r.Context(), shared.PrincipalFromContext(r.Context()), id); err != nil {
		h.respondError(w, r, "delete comment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPostNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	default:
		if h.logger != nil {
			h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
		}
		httpx.RespondError(w, err)
	}
}

func parseID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
