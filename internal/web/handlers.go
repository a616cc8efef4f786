package web

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"pdfchat/internal/domain"
	"pdfchat/internal/session"
)

type pageMessage struct {
	User    bool
	Content string
}

type pageData struct {
	Title      string
	Document   *session.DocumentInfo
	Messages   []pageMessage
	Flash      string
	MaxUpload  int
	NoDocument bool
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	v := sess.View()
	data := pageData{
		Title:      s.opts.Title,
		Document:   v.Document,
		Flash:      sess.TakeFlash(),
		MaxUpload:  s.opts.MaxUploadMB,
		NoDocument: v.Document == nil,
	}
	for _, m := range v.Messages() {
		pm := pageMessage{User: m.Role == domain.RoleUser, Content: m.Content}
		if m.Role == domain.RoleAssistant {
			pm.Content += s.opts.AnswerSuffix
		}
		data.Messages = append(data.Messages, pm)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		s.log.Error("render page", zap.Error(err))
	}
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := s.loadFromForm(w, r, sess); err != nil {
		_, _, msg := classify(err)
		sess.SetFlash(msg)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if _, err := sess.Ask(r.Context(), r.FormValue("question")); err != nil {
		_, _, msg := classify(err)
		sess.SetFlash(msg)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	s.sessions.Reset(sessionFrom(r).ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type sessionResponse struct {
	SessionID  string                `json:"session_id"`
	Document   *session.DocumentInfo `json:"document,omitempty"`
	Transcript []domain.Message      `json:"transcript"`
	History    []domain.Turn         `json:"history"`
	Pending    bool                  `json:"pending"`
}

func newSessionResponse(sess *session.Session) sessionResponse {
	v := sess.View()
	return sessionResponse{
		SessionID:  sess.ID,
		Document:   v.Document,
		Transcript: v.Messages(),
		History:    v.History,
		Pending:    v.Pending,
	}
}

func (s *Server) apiSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSessionResponse(sessionFrom(r)))
}

func (s *Server) apiReset(w http.ResponseWriter, r *http.Request) {
	s.sessions.Reset(sessionFrom(r).ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiDocument(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := s.loadFromForm(w, r, sess); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer     string           `json:"answer"`
	Transcript []domain.Message `json:"transcript"`
}

func (s *Server) apiAsk(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: apiError{Code: "VALIDATION_ERROR", Message: "Invalid request body"}})
		return
	}
	answer, err := sess.Ask(r.Context(), req.Question)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, askResponse{Answer: answer, Transcript: sess.View().Messages()})
}

// loadFromForm reads the multipart "file" field and loads it into sess.
func (s *Server) loadFromForm(w http.ResponseWriter, r *http.Request, sess *session.Session) error {
	limit := int64(s.opts.MaxUploadMB) << 20
	if r.ContentLength > limit {
		return errTooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return &session.LoadError{Name: "", Err: errors.New("no file provided")}
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return err
	}
	if int64(len(data)) > limit {
		return errTooLarge
	}
	return sess.LoadDocument(r.Context(), header.Filename, data)
}

func decodeJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		return errors.New("expected application/json")
	}
	return jsonDecoder(r.Body).Decode(v)
}
