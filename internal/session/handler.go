package session

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"geoquiz/internal/app/apiresp"
	"geoquiz/internal/bank"
	"geoquiz/internal/flow"
	"geoquiz/internal/platform/logger"
	"geoquiz/internal/survey"

	"github.com/google/uuid"
)

const CookieName = "geoquiz_session"

// Renderer is satisfied by *html/template.Template.
type Renderer interface {
	ExecuteTemplate(w io.Writer, name string, data any) error
}

type Handler struct {
	svc       *Service
	tmpl      Renderer
	log       *logger.Logger
	secure    bool
	csrfToken func(r *http.Request) string
}

type HandlerConfig struct {
	SecureCookie bool
	CSRFToken    func(r *http.Request) string
}

func NewHandler(svc *Service, tmpl Renderer, log *logger.Logger, cfg HandlerConfig) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	token := cfg.CSRFToken
	if token == nil {
		token = func(*http.Request) string { return "" }
	}
	return &Handler{svc: svc, tmpl: tmpl, log: log, secure: cfg.SecureCookie, csrfToken: token}
}

// Feedback is shown after an answer was confirmed.
type Feedback struct {
	Selected    string
	IsCorrect   bool
	Correct     string
	Explanation string
}

type Page struct {
	Title         string
	Stage         flow.Stage
	Instrument    *survey.Instrument
	State         flow.State
	Question      bank.QuizQuestion
	Number        int
	Total         int
	Feedback      *Feedback
	Warnings      []flow.Warning
	FieldWarnings map[string]string
	Form          map[string]string
	CSRFToken     string
}

// sessionID returns the caller's session id, issuing a new cookie when the
// request carries none or an unparsable one.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	r.AddCookie(&http.Cookie{Name: CookieName, Value: id})
	return id
}

// SessionID reads the session cookie without issuing one.
func SessionID(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// CurrentState lets the report download find the caller's session.
func (h *Handler) CurrentState(r *http.Request) (flow.State, error) {
	id := SessionID(r)
	if id == "" {
		return h.svc.Controller().New(), nil
	}
	return h.svc.Current(r.Context(), id)
}

func (h *Handler) page(r *http.Request, st flow.State) Page {
	p := Page{
		Title:         h.svc.Controller().Instrument().Title,
		Stage:         st.Stage,
		Instrument:    h.svc.Controller().Instrument(),
		State:         st,
		Total:         len(st.Questions),
		FieldWarnings: map[string]string{},
		Form:          map[string]string{},
		CSRFToken:     h.csrfToken(r),
	}
	if q, ok := st.Current(); ok {
		p.Question = q
		p.Number = st.Index + 1
		if st.Submitted {
			p.Feedback = &Feedback{
				Selected:    st.Selected,
				IsCorrect:   flow.IsCorrect(st.Selected, q.CorrectOption),
				Correct:     q.CorrectOption,
				Explanation: q.Explanation,
			}
		}
	}
	return p
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, p Page) {
	name := string(p.Stage)
	if name == "" {
		name = string(flow.StageIntake)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.tmpl.ExecuteTemplate(w, name, p); err != nil {
		h.log.Error("render page failed", "page", name, "err", err)
	}
}

// Show renders the page for the session's current stage.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id := h.sessionID(w, r)
	st, err := h.svc.Current(r.Context(), id)
	if err != nil {
		h.log.Error("load session failed", "session_id", id, "err", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, h.page(r, st))
}

func (h *Handler) SubmitIntake(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	fields := map[string]string{}
	for _, f := range h.svc.Controller().Instrument().Intake.Fields {
		fields[f.Key] = strings.TrimSpace(r.PostForm.Get(f.Key))
	}
	count, _ := strconv.Atoi(r.PostForm.Get("question_count"))
	form := map[string]string{"question_count": r.PostForm.Get("question_count")}
	for k, v := range fields {
		form[k] = v
	}
	h.dispatchForm(w, r, flow.Action{
		Kind:   flow.ActionSubmitIntake,
		Intake: flow.IntakeForm{Fields: fields, QuestionCount: count},
	}, form)
}

func (h *Handler) ConfirmAnswer(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	option := r.PostForm.Get("option")
	h.dispatchForm(w, r, flow.Action{Kind: flow.ActionConfirmAnswer, Option: option}, map[string]string{"option": option})
}

func (h *Handler) NextQuestion(w http.ResponseWriter, r *http.Request) {
	h.dispatchForm(w, r, flow.Action{Kind: flow.ActionNextQuestion}, nil)
}

func (h *Handler) SubmitSurvey(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	answers := map[string]string{}
	for _, it := range h.svc.Controller().Instrument().Items() {
		if v := r.PostForm.Get(it.Key); v != "" {
			answers[it.Key] = v
		}
	}
	h.dispatchForm(w, r, flow.Action{Kind: flow.ActionSubmitSurvey, Survey: answers}, answers)
}

func (h *Handler) Restart(w http.ResponseWriter, r *http.Request) {
	h.dispatchForm(w, r, flow.Action{Kind: flow.ActionRestart}, nil)
}

// dispatchForm redirects back to / on success. Validation failures re-render
// the current page with the submitted values and warnings.
func (h *Handler) dispatchForm(w http.ResponseWriter, r *http.Request, a flow.Action, form map[string]string) {
	id := h.sessionID(w, r)
	st, err := h.svc.Dispatch(r.Context(), id, a)
	switch {
	case err == nil:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, flow.ErrValidationIncomplete):
		p := h.page(r, st)
		var verr *flow.ValidationError
		if errors.As(err, &verr) {
			seen := map[string]bool{}
			for _, wn := range verr.Warnings {
				p.FieldWarnings[wn.Field] = wn.Message
				if !seen[wn.Message] {
					seen[wn.Message] = true
					p.Warnings = append(p.Warnings, wn)
				}
			}
		}
		for k, v := range form {
			p.Form[k] = v
		}
		h.render(w, r, http.StatusUnprocessableEntity, p)
	case errors.Is(err, flow.ErrInvalidAction):
		http.Redirect(w, r, "/", http.StatusSeeOther)
	default:
		h.log.Error("dispatch failed", "session_id", id, "action", a.Kind, "err", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
	}
}

type sessionView struct {
	ID       string        `json:"id"`
	State    flow.State    `json:"state"`
	Question *questionView `json:"question,omitempty"`
}

// questionView hides the correct option until the answer was confirmed.
type questionView struct {
	Number      int      `json:"number"`
	Total       int      `json:"total"`
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	Correct     string   `json:"correct_option,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
}

func view(id string, st flow.State) sessionView {
	v := sessionView{ID: id, State: st}
	v.State.Questions = nil
	if q, ok := st.Current(); ok {
		qv := &questionView{Number: st.Index + 1, Total: len(st.Questions), Prompt: q.Prompt, Options: q.Options}
		if st.Submitted {
			qv.Correct = q.CorrectOption
			qv.Explanation = q.Explanation
		}
		v.Question = qv
	}
	return v
}

func (h *Handler) APIGet(w http.ResponseWriter, r *http.Request) {
	id := h.sessionID(w, r)
	st, err := h.svc.Current(r.Context(), id)
	if err != nil {
		h.log.Error("load session failed", "session_id", id, "err", err)
		apiresp.WriteError(w, r, http.StatusInternalServerError, "session unavailable")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, view(id, st))
}

func (h *Handler) APIAction(w http.ResponseWriter, r *http.Request) {
	var a flow.Action
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}

	id := h.sessionID(w, r)
	st, err := h.svc.Dispatch(r.Context(), id, a)
	switch {
	case err == nil:
		apiresp.WriteOK(w, r, http.StatusOK, view(id, st))
	case errors.Is(err, flow.ErrValidationIncomplete):
		var verr *flow.ValidationError
		var warnings []flow.Warning
		if errors.As(err, &verr) {
			warnings = verr.Warnings
		}
		apiresp.WriteValidation(w, r, warnings)
	case errors.Is(err, flow.ErrInvalidAction):
		apiresp.WriteError(w, r, http.StatusConflict, err.Error())
	default:
		h.log.Error("dispatch failed", "session_id", id, "action", a.Kind, "err", err)
		apiresp.WriteError(w, r, http.StatusInternalServerError, "session unavailable")
	}
}
