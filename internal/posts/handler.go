package posts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/inkwell-cms/inkwell/internal/coherence"
	"github.com/inkwell-cms/inkwell/internal/platform/httpx"
	"github.com/inkwell-cms/inkwell/internal/shared"
)

// Handler exposes the posts API.
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

// MountRoutes registers the post routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/publish", h.Publish)
	r.Post("/{id}/unpublish", h.Unpublish)
}

type postRequest struct {
	Title  string `json:"title" validate:"required,min=1,max=200"`
	Body   string `json:"body" validate:"required"`
	Status string `json:"status" validate:"omitempty,oneof=draft published"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	params, err := listParamsFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	result, err := h.service.List(r.Context(), shared.PrincipalFromContext(r.Context()), params)
	if err != nil {
		h.respondError(w, r, "list posts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid post id")
		return
	}
	post, err := h.service.Get(r.Context(), shared.PrincipalFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, "get post", err)
		return
	}
	httpx.JSON(w, http.StatusOK, post)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	post, err := h.service.Create(r.Context(), shared.PrincipalFromContext(r.Context()), CreateInput{
		Title:  req.Title,
		Body:   req.Body,
		Status: statusOrDraft(req.Status),
	})
	if err != nil {
		h.respondError(w, r, "create post", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, post)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid post id")
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	post, err := h.service.Update(r.Context(), shared.PrincipalFromContext(r.Context()), id, UpdateInput{
		Title:  req.Title,
		Body:   req.Body,
		Status: statusOrDraft(req.Status),
	})
	if err != nil {
		h.respondError(w, r, "update post", err)
		return
	}
	httpx.JSON(w, http.StatusOK, post)
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, StatusPublished)
}

func (h *Handler) Unpublish(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, StatusDraft)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, status Status) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid post id")
		return
	}
	post, err := h.service.SetStatus(r.Context(), shared.PrincipalFromContext(r.Context()), id, status)
	if err != nil {
		h.respondError(w, r, "set post status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, post)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid post id")
		return
	}
	if err := h.service.Delete(r.Context(), shared.PrincipalFromContext(r.Context()), id); err != nil {
		h.respondError(w, r, "delete post", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (postRequest, bool) {
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return req, false
	}
	return req, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrDuplicateTitle):
		httpx.RespondError(w, httpx.ErrConflict)
	default:
		if h.logger != nil {
			h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
		}
		httpx.RespondError(w, err)
	}
}

func statusOrDraft(s string) Status {
	if s == "" {
		return StatusDraft
	}
	return Status(s)
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func listParamsFromQuery(r *http.Request) (coherence.ListParams, error) {
	q := r.URL.Query()
	params := coherence.ListParams{
		Status:    q.Get("status"),
		SortField: q.Get("sort"),
		SortOrder: q.Get("order"),
	}
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return params, errors.New("invalid page")
		}
		params.Page = n
	}
	if raw := q.Get("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return params, errors.New("invalid page_size")
		}
		params.PageSize = n
	}
	var err error
	if params.From, err = dateParam(q.Get("from")); err != nil {
		return params, errors.New("invalid from date, want YYYY-MM-DD")
	}
	if params.To, err = dateParam(q.Get("to")); err != nil {
		return params, errors.New("invalid to date, want YYYY-MM-DD")
	}
	return params, nil
}

func dateParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
