package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/p-n-ai/pai-instructor/internal/lms"
	"github.com/p-n-ai/pai-instructor/internal/nav"
	"github.com/p-n-ai/pai-instructor/internal/platform/scope"
	"github.com/p-n-ai/pai-instructor/internal/questionbank"
	"github.com/p-n-ai/pai-instructor/internal/quiz"
	"github.com/p-n-ai/pai-instructor/internal/tree"
)

const maxBody = 10 << 20

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), errorBody{Error: err.Error()})
}

func statusOf(err error) int {
	var apiErr *lms.APIError
	var importErr *questionbank.ImportError
	switch {
	case errors.Is(err, tree.ErrDeclined):
		return http.StatusPreconditionRequired
	case errors.Is(err, scope.ErrBusy), errors.Is(err, quiz.ErrQuizExists):
		return http.StatusConflict
	case errors.Is(err, scope.ErrClosed):
		return http.StatusGone
	case errors.Is(err, tree.ErrInvalidInput),
		errors.Is(err, quiz.ErrInvalidQuestion),
		errors.Is(err, questionbank.ErrNoQuizzes),
		errors.Is(err, nav.ErrMissingParent),
		errors.As(err, &importErr):
		return http.StatusBadRequest
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return apiErr.StatusCode
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

// pathID parses a positive id path value, answering 400 when it is not one.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid %s %q", name, r.PathValue(name))})
		return 0, false
	}
	return id, true
}

func queryIDs(r *http.Request, name string) []int64 {
	var out []int64
	for _, v := range r.URL.Query()[name] {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			out = append(out, id)
		}
	}
	return out
}
