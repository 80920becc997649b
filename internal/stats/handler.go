package stats

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-cms/inkwell/internal/platform/httpx"
	"github.com/inkwell-cms/inkwell/internal/shared"
)

// Handler exposes the stats API.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the stats routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/posts", h.Posts)
	r.Get("/comments", h.Comments)
	r.Get("/users", h.Users)
}

func (h *Handler) Posts(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	from, to, ranged, err := rangeFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	var out PostStats
	if ranged {
		out, err = h.service.PostsRange(r.Context(), principal, from, to)
	} else {
		out, err = h.service.Posts(r.Context(), principal)
	}
	if err != nil {
		h.respondError(w, r, "post stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Comments(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	from, to, ranged, err := rangeFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	var out CommentStats
	if ranged {
		out, err = h.service.CommentsRange(r.Context(), principal, from, to)
	} else {
		out, err = h.service.Comments(r.Context(), principal)
	}
	if err != nil {
		h.respondError(w, r, "comment stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Users(r.Context(), shared.PrincipalFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, "user stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
	}
	httpx.RespondError(w, err)
}

// rangeFromQuery parses optional from/to day bounds. Both must be
// present together; to is exclusive.
func rangeFromQuery(r *http.Request) (from, to time.Time, ranged bool, err error) {
	q := r.URL.Query()
	rawFrom, rawTo := q.Get("from"), q.Get("to")
	if rawFrom == "" && rawTo == "" {
		return time.Time{}, time.Time{}, false, nil
	}
	if rawFrom == "" || rawTo == "" {
		return time.Time{}, time.Time{}, false, errors.New("from and to must be given together")
	}
	from, err = time.Parse("2006-01-02", rawFrom)
	if err != nil {
		return time.Time{}, time.Time{}, false, errors.New("invalid from date, want YYYY-MM-DD")
	}
	to, err = time.Parse("2006-01-02", rawTo)
	if err != nil {
		return time.Time{}, time.Time{}, false, errors.New("invalid to date, want YYYY-MM-DD")
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, false, errors.New("from must be before to")
	}
	return from, to, true, nil
}
