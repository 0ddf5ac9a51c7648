package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"convwin/internal/conversation"
	"convwin/internal/storage"
	"convwin/internal/window"
)

// maxStateBytes bounds the request body of a summarize call.
const maxStateBytes = 8 << 20

// SummaryStore is the read side of the summary journal.
type SummaryStore interface {
	ListSummaries(ctx context.Context, threadID string, limit int) ([]conversation.SummaryRecord, error)
	CountSummaries(ctx context.Context, threadID string) (int, error)
	LatestSummary(ctx context.Context, threadID string) (*conversation.SummaryRecord, error)
	FindByDigest(ctx context.Context, digest string) (*conversation.SummaryRecord, error)
}

// SummarizeResponse is returned by POST /api/v1/window/summarize.
type SummarizeResponse struct {
	State   *conversation.ThreadState `json:"state"`
	Outcome *window.Outcome           `json:"outcome"`
}

// SummaryListResponse is returned by GET /api/v1/threads/{id}/summaries.
type SummaryListResponse struct {
	ThreadID  string                       `json:"thread_id"`
	Total     int                          `json:"total"`
	Summaries []conversation.SummaryRecord `json:"summaries"`
}

// WindowHandler exposes the window manager and its journal over HTTP.
type WindowHandler struct {
	manager *window.Manager
	store   SummaryStore
}

// NewWindowHandler creates a WindowHandler. store may be nil when the
// journal is disabled; the summary routes then answer 503.
func NewWindowHandler(manager *window.Manager, store SummaryStore) *WindowHandler {
	return &WindowHandler{manager: manager, store: store}
}

// RegisterRoutes registers the window routes on r.
func (h *WindowHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/window/summarize", h.Summarize).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/window/config", h.GetConfig).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/threads/{id}/summaries", h.ListSummaries).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/threads/{id}/summaries/latest", h.LatestSummary).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/summaries/digest/{digest}", h.SummaryByDigest).Methods(http.MethodGet)
}

// Summarize runs one summarization cycle over the posted thread state and
// returns the rewritten state.
func (h *WindowHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	state, err := conversation.DecodeState(http.MaxBytesReader(w, r.Body, maxStateBytes))
	if err != nil {
		if errors.Is(err, conversation.ErrMissingMessages) {
			SendError(w, http.StatusBadRequest, ErrCodeInvalidState, err.Error())
			return
		}
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid thread state: "+err.Error())
		return
	}

	outcome, err := h.manager.PerformSummarization(r.Context(), state)
	if err != nil {
		if errors.Is(err, window.ErrInvalidRole) || errors.Is(err, window.ErrNilState) {
			SendError(w, http.StatusBadRequest, ErrCodeInvalidState, err.Error())
			return
		}
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	SendJSON(w, http.StatusOK, SummarizeResponse{State: state, Outcome: outcome})
}

// GetConfig returns the active window configuration.
func (h *WindowHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	SendJSON(w, http.StatusOK, h.manager.Config())
}

// ListSummaries lists journaled summary records of a thread, oldest first.
// The optional limit query parameter keeps only the newest records.
func (h *WindowHandler) ListSummaries(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		SendError(w, http.StatusServiceUnavailable, ErrCodeJournalDisabled, "summary journal is disabled")
		return
	}

	threadID := mux.Vars(r)["id"]
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := h.store.ListSummaries(r.Context(), threadID, limit)
	if err != nil {
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	total, err := h.store.CountSummaries(r.Context(), threadID)
	if err != nil {
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if records == nil {
		records = []conversation.SummaryRecord{}
	}

	SendJSON(w, http.StatusOK, SummaryListResponse{
		ThreadID:  threadID,
		Total:     total,
		Summaries: records,
	})
}

// LatestSummary returns the newest journaled record of a thread.
func (h *WindowHandler) LatestSummary(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		SendError(w, http.StatusServiceUnavailable, ErrCodeJournalDisabled, "summary journal is disabled")
		return
	}

	rec, err := h.store.LatestSummary(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrNotFound) {
		SendError(w, http.StatusNotFound, ErrCodeNotFound, "no summaries for thread")
		return
	}
	if err != nil {
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	SendJSON(w, http.StatusOK, rec)
}

// SummaryByDigest finds the record whose evicted batch hashes to digest.
func (h *WindowHandler) SummaryByDigest(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		SendError(w, http.StatusServiceUnavailable, ErrCodeJournalDisabled, "summary journal is disabled")
		return
	}

	rec, err := h.store.FindByDigest(r.Context(), mux.Vars(r)["digest"])
	if errors.Is(err, storage.ErrNotFound) {
		SendError(w, http.StatusNotFound, ErrCodeNotFound, "no summary with that digest")
		return
	}
	if err != nil {
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	SendJSON(w, http.StatusOK, rec)
}
