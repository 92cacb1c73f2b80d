package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"quiz-progress-service/internal/app"
	"quiz-progress-service/internal/domain"
)

// Handler serves the REST surface of ProgressService.
type Handler struct {
	service *app.ProgressService
}

func NewHandler(service *app.ProgressService) *Handler {
	return &Handler{service: service}
}

type attemptRequest struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
}

type sessionView struct {
	ID string `json:"id"`
	domain.SessionRecord
}

func (h *Handler) SyncProfile(w http.ResponseWriter, r *http.Request) {
	var in domain.ProfileInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	profile, err := h.service.SyncProfile(r.Context(), CallerID(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Profile(r.Context(), CallerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	totals, err := h.service.Stats(r.Context(), CallerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// SubmitAttempt queues the answer and returns before it is stored.
func (h *Handler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	queued, err := h.service.SubmitAttempt(r.Context(), CallerID(r.Context()), app.Attempt{
		SubjectID:  chi.URLParam(r, "id"),
		QuestionID: req.QuestionID,
		Correct:    req.Correct,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}

func (h *Handler) QuestionState(w http.ResponseWriter, r *http.Request) {
	state, ok, err := h.service.QuestionState(r.Context(), CallerID(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "questionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "question not attempted"})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) IncorrectQuestions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.IncorrectQuestions(r.Context(), CallerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"questionIds": ids})
}

func (h *Handler) SaveSession(w http.ResponseWriter, r *http.Request) {
	var record domain.SessionRecord
	if err := decodeBody(r, &record); err != nil {
		writeError(w, r, err)
		return
	}
	id, err := h.service.SaveSession(r.Context(), CallerID(r.Context()), chi.URLParam(r, "id"), record)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := h.service.ListSessions(r.Context(), CallerID(r.Context()), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]sessionView, len(records))
	for i, record := range records {
		views[i] = sessionView{ID: record.ID, SessionRecord: record}
	}
	writeJSON(w, http.StatusOK, map[string][]sessionView{"sessions": views})
}

func (h *Handler) ResetStatistics(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.ResetStatistics(r.Context(), CallerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writePartial(w, r, err, deleted)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (h *Handler) DeleteAllData(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.DeleteAllData(r.Context(), CallerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writePartial(w, r, err, deleted)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// ListSubjects pages through every profile, or only those on one
// subscription level when ?subscription= is set.
func (h *Handler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var result domain.SubjectPage
	if level := r.URL.Query().Get("subscription"); level != "" {
		result, err = h.service.ListSubjectsBySubscription(r.Context(), CallerID(r.Context()), level, page, pageSize)
	} else {
		result, err = h.service.ListSubjects(r.Context(), CallerID(r.Context()), page, pageSize)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSubjectPage(w, result)
}

func (h *Handler) ListPendingSubjects(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.service.ListPendingSubjects(r.Context(), CallerID(r.Context()), page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSubjectPage(w, result)
}

func (h *Handler) SearchSubjects(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.SearchSubjects(r.Context(), CallerID(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []domain.SubjectSummary{}
	}
	writeJSON(w, http.StatusOK, map[string][]domain.SubjectSummary{"users": rows})
}

func (h *Handler) ApproveSubject(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.ApproveSubject(r.Context(), CallerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type subscriptionRequest struct {
	SubscriptionLevel string `json:"subscriptionLevel"`
}

func (h *Handler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	profile, err := h.service.UpdateSubscription(r.Context(), CallerID(r.Context()), chi.URLParam(r, "id"), req.SubscriptionLevel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func writeSubjectPage(w http.ResponseWriter, result domain.SubjectPage) {
	if result.Subjects == nil {
		result.Subjects = []domain.SubjectSummary{}
	}
	writeJSON(w, http.StatusOK, result)
}

func pageParams(r *http.Request) (int, int, error) {
	page, err := intParam(r, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err := intParam(r, "pageSize", 20)
	if err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidParam(name)
	}
	return n, nil
}

func invalidParam(name string) error {
	return fmt.Errorf("%w: invalid query parameter %s", domain.ErrInvalidArgument, name)
}
