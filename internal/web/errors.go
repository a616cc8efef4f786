package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"pdfchat/internal/session"
)

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

var errTooLarge = errors.New("file exceeds the upload limit")

// classify maps session errors onto an HTTP status, an API code and the
// message shown to the user.
func classify(err error) (int, string, string) {
	var loadErr *session.LoadError
	var answerErr *session.AnswerError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr), errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "That file is too large to upload."
	case errors.As(err, &loadErr):
		return http.StatusUnprocessableEntity, "DOCUMENT_LOAD_ERROR", "Could not read that PDF: " + loadErr.Err.Error()
	case errors.Is(err, session.ErrClosed):
		return http.StatusConflict, "SESSION_CLOSED", "Your session has ended. Please reload the page."
	case errors.Is(err, session.ErrNoDocument):
		return http.StatusConflict, "NO_DOCUMENT", "Upload a PDF first!"
	case errors.Is(err, session.ErrEmptyQuestion):
		return http.StatusBadRequest, "EMPTY_QUESTION", "Please type a question."
	case errors.As(err, &answerErr):
		return http.StatusBadGateway, "ANSWER_GENERATION_ERROR", "Sorry, the answer could not be generated. Please try again."
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong."
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	writeJSON(w, status, errorResponse{Error: apiError{
		Code:      code,
		Message:   msg,
		RequestID: chimiddleware.GetReqID(r.Context()),
	}})
}

func jsonDecoder(r io.Reader) *json.Decoder {
	dec := json.NewDecoder(io.LimitReader(r, 1<<20))
	dec.DisallowUnknownFields()
	return dec
}
