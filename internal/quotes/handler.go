package quotes

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tradewind-b2b/tradewind/internal/catalog"
	"github.com/tradewind-b2b/tradewind/internal/platform/httpx"
)

// Handler exposes the quote lifecycle as a JSON API. Authentication is an
// upstream concern; the acting user arrives via the X-Actor-ID header.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	quote, err := h.service.Create(r.Context(), req, actorID(r))
	if err != nil {
		h.respondError(w, r, "create quote", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, quote)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	req := parseListRequest(r)
	quotes, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.respondError(w, r, "list quotes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"quotes": quotes,
		"total":  total,
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	quote, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, "get quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) ShowByNumber(w http.ResponseWriter, r *http.Request) {
	quote, err := h.service.GetByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.respondError(w, r, "get quote by number", err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if req.Status == StatusRejected && strings.TrimSpace(req.Details) == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "rejection requires a reason")
		return
	}

	quote, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, actorID(r), req.Details)
	if err != nil {
		h.respondError(w, r, "update quote status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) AddRevision(w http.ResponseWriter, r *http.Request) {
	var req RevisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if strings.TrimSpace(req.Summary) == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "revision requires a summary of changes")
		return
	}

	quote, err := h.service.AddRevision(r.Context(), chi.URLParam(r, "id"), req, actorID(r))
	if err != nil {
		h.respondError(w, r, "add quote revision", err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	ref, err := h.service.Convert(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		h.respondError(w, r, "convert quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ref)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	req := parseListRequest(r)
	summary, err := h.service.GetSummary(r.Context(), req)
	if err != nil {
		h.respondError(w, r, "quote summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) Expiring(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.service.CheckExpiring(r.Context())
	if err != nil {
		h.respondError(w, r, "check expiring quotes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"quotes": quotes})
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.GetTemplates(r.Context(), r.URL.Query().Get("company_id"))
	if err != nil {
		h.respondError(w, r, "list templates", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (h *Handler) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	var req SaveTemplateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	tpl, err := h.service.SaveTemplate(r.Context(), req, actorID(r))
	if err != nil {
		h.respondError(w, r, "save template", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tpl)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid State", err.Error())
	case errors.Is(err, ErrVersionConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func actorID(r *http.Request) string {
	if actor := strings.TrimSpace(r.Header.Get("X-Actor-ID")); actor != "" {
		return actor
	}
	return "system"
}

func parseListRequest(r *http.Request) ListQuotesRequest {
	q := r.URL.Query()
	req := ListQuotesRequest{
		CompanyID: q.Get("company_id"),
	}
	if status := q.Get("status"); status != "" {
		s := Status(status)
		req.Status = &s
	}
	req.DateFrom = parseDate(q.Get("date_from"))
	req.DateTo = parseDate(q.Get("date_to"))
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		req.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset > 0 {
		req.Offset = offset
	}
	return req
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
