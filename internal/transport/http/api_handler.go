package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

// UserHeader carries the authenticated user id set by the upstream auth layer.
const UserHeader = "X-User-ID"

// APIHandler serves the JSON quiz and ranking endpoints.
type APIHandler struct {
	attempts *app.AttemptService
	rankings *app.RankingService
	validate *validator.Validate
	logger   *log.Logger
}

func NewAPIHandler(attempts *app.AttemptService, rankings *app.RankingService, logger *log.Logger) *APIHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &APIHandler{
		attempts: attempts,
		rankings: rankings,
		validate: validator.New(),
		logger:   logger,
	}
}

// Register mounts the API routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /quizzes/{quizID}/submissions", h.submit)
	mux.HandleFunc("POST /quizzes/{quizID}/preview", h.preview)
	mux.HandleFunc("GET /attempts/{attemptID}", h.review)
	mux.HandleFunc("GET /owners/{kind}/{ownerID}/attempts", h.history)
	mux.HandleFunc("GET /rankings/{kind}/{ownerID}", h.ranking)
	mux.HandleFunc("GET /rankings/{kind}", h.leaderboard)
}

type answerRequest struct {
	QuestionID string   `json:"questionId" validate:"required"`
	ChoiceID   string   `json:"choiceId"`
	ChoiceIDs  []string `json:"choiceIds" validate:"omitempty,dive,required"`
	Text       string   `json:"text" validate:"max=4000"`
}

type submissionRequest struct {
	GroupID string          `json:"groupId"`
	Answers []answerRequest `json:"answers" validate:"unique=QuestionID,dive"`
}

func (r submissionRequest) answerMap() map[string]domain.Answer {
	out := make(map[string]domain.Answer, len(r.Answers))
	for _, a := range r.Answers {
		out[a.QuestionID] = domain.Answer{ChoiceID: a.ChoiceID, ChoiceIDs: a.ChoiceIDs, Text: a.Text}
	}
	return out
}

func (h *APIHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	sub := app.Submitter{UserID: r.Header.Get(UserHeader), GroupID: req.GroupID}
	result, err := h.attempts.Submit(r.Context(), r.PathValue("quizID"), sub, req.answerMap())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *APIHandler) preview(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.attempts.Preview(r.Context(), r.PathValue("quizID"), req.answerMap())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) review(w http.ResponseWriter, r *http.Request) {
	review, err := h.attempts.Review(r.Context(), r.Header.Get(UserHeader), r.PathValue("attemptID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (h *APIHandler) history(w http.ResponseWriter, r *http.Request) {
	owner := domain.Owner{Kind: domain.OwnerKind(r.PathValue("kind")), ID: r.PathValue("ownerID")}
	attempts, err := h.attempts.History(r.Context(), r.Header.Get(UserHeader), owner)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *APIHandler) ranking(w http.ResponseWriter, r *http.Request) {
	owner := domain.Owner{Kind: domain.OwnerKind(r.PathValue("kind")), ID: r.PathValue("ownerID")}
	ranking, err := h.rankings.Get(r.Context(), owner)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}

func (h *APIHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 100 {
			writeJSON(w, http.StatusBadRequest, errorPayload{Message: "limit must be between 0 and 100"})
			return
		}
		limit = n
	}
	board, err := h.rankings.Leaderboard(r.Context(), domain.OwnerKind(r.PathValue("kind")), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid JSON body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: err.Error()})
		return false
	}
	return true
}

// writeError maps error classes onto HTTP statuses. Unclassified errors are logged
// and hidden behind a 500.
func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrPermission):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		h.logger.Printf("request failed: %v", err)
		writeJSON(w, status, errorPayload{Message: "internal error"})
		return
	}
	writeJSON(w, status, errorPayload{Message: err.Error()})
}

type errorPayload struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
