package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"geoquiz/internal/flow"
)

type recordingRenderer struct {
	name string
	page Page
}

func (r *recordingRenderer) ExecuteTemplate(w io.Writer, name string, data any) error {
	r.name = name
	r.page, _ = data.(Page)
	_, err := fmt.Fprintf(w, "<page %s>", name)
	return err
}

func newTestHandler(t *testing.T) (*Handler, *recordingRenderer) {
	t.Helper()
	svc, _, _ := newTestService(t, flow.VariantExtended)
	tmpl := &recordingRenderer{}
	return NewHandler(svc, tmpl, nil, HandlerConfig{
		CSRFToken: func(*http.Request) string { return "tok" },
	}), tmpl
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatalf("session cookie not set")
	return nil
}

func postForm(h http.HandlerFunc, cookie *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestShowIssuesCookieAndRendersIntake(t *testing.T) {
	h, tmpl := newTestHandler(t)
	rr := httptest.NewRecorder()
	h.Show(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	sessionCookie(t, rr)
	if tmpl.name != "intake" || tmpl.page.CSRFToken != "tok" {
		t.Fatalf("unexpected render %s %+v", tmpl.name, tmpl.page)
	}
}

func TestSubmitIntakeFormFlow(t *testing.T) {
	h, tmpl := newTestHandler(t)

	rr := postForm(h.SubmitIntake, nil, url.Values{})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty intake, got %d", rr.Code)
	}
	if tmpl.name != "intake" || len(tmpl.page.FieldWarnings) != 5 || len(tmpl.page.Warnings) != 5 {
		t.Fatalf("expected 5 field warnings, got %v", tmpl.page.FieldWarnings)
	}
	cookie := sessionCookie(t, rr)

	form := url.Values{
		"grade":          {"五年級"},
		"gender":         {"女"},
		"tutoring":       {"有"},
		"study_time":     {"6小時以上"},
		"question_count": {"10"},
	}
	rr = postForm(h.SubmitIntake, cookie, form)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect, got %d %q", rr.Code, rr.Header().Get("Location"))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rr = httptest.NewRecorder()
	h.Show(rr, req)
	if tmpl.name != "quiz" || tmpl.page.Number != 1 || tmpl.page.Total != 10 || tmpl.page.Feedback != nil {
		t.Fatalf("unexpected quiz page %s number=%d total=%d", tmpl.name, tmpl.page.Number, tmpl.page.Total)
	}

	rr = postForm(h.ConfirmAnswer, cookie, url.Values{})
	if rr.Code != http.StatusUnprocessableEntity || tmpl.page.FieldWarnings["option"] == "" {
		t.Fatalf("expected option warning, got %d %v", rr.Code, tmpl.page.FieldWarnings)
	}

	rr = postForm(h.ConfirmAnswer, cookie, url.Values{"option": {tmpl.page.Question.CorrectOption}})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect after confirm, got %d", rr.Code)
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	h.Show(httptest.NewRecorder(), req)
	if tmpl.page.Feedback == nil || !tmpl.page.Feedback.IsCorrect {
		t.Fatalf("expected correct feedback, got %+v", tmpl.page.Feedback)
	}
	if tmpl.page.Feedback.Selected != tmpl.page.Question.CorrectOption {
		t.Fatalf("expected selected %q, got %q", tmpl.page.Question.CorrectOption, tmpl.page.Feedback.Selected)
	}
}

func TestOutOfOrderFormPostRedirects(t *testing.T) {
	h, _ := newTestHandler(t)
	rr := postForm(h.NextQuestion, nil, url.Values{})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect for invalid action, got %d", rr.Code)
	}
}

func apiPost(h *Handler, cookie *http.Cookie, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/actions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	h.APIAction(rr, req)
	return rr
}

func TestAPIActionStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "bad json", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"type":"restart","extra":1}`, wantStatus: http.StatusBadRequest},
		{name: "out of order", body: `{"type":"next_question"}`, wantStatus: http.StatusConflict},
		{name: "internal action", body: `{"type":"finalized"}`, wantStatus: http.StatusConflict},
		{name: "incomplete intake", body: `{"type":"submit_intake"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "restart", body: `{"type":"restart"}`, wantStatus: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newTestHandler(t)
			rr := apiPost(h, nil, tc.body)
			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d body=%s", tc.wantStatus, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestAPIHidesAnswerUntilConfirmed(t *testing.T) {
	h, _ := newTestHandler(t)
	rr := apiPost(h, nil, `{"type":"submit_intake","intake":{"fields":{"grade":"三年級","gender":"男","tutoring":"無","study_time":"1小時以下"},"question_count":10}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("intake failed: %d %s", rr.Code, rr.Body.String())
	}
	cookie := sessionCookie(t, rr)

	var body struct {
		Data struct {
			State    map[string]any `json:"state"`
			Question struct {
				Number  int      `json:"number"`
				Options []string `json:"options"`
				Correct string   `json:"correct_option"`
			} `json:"question"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Question.Number != 1 || len(body.Data.Question.Options) != 4 {
		t.Fatalf("unexpected question %+v", body.Data.Question)
	}
	if body.Data.Question.Correct != "" {
		t.Fatalf("correct option leaked before confirm")
	}
	if _, ok := body.Data.State["questions"]; ok {
		t.Fatalf("question list leaked in state")
	}

	rr = apiPost(h, cookie, fmt.Sprintf(`{"type":"confirm_answer","option":%q}`, body.Data.Question.Options[0]))
	if rr.Code != http.StatusOK {
		t.Fatalf("confirm failed: %d %s", rr.Code, rr.Body.String())
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Question.Correct == "" {
		t.Fatalf("correct option should be revealed after confirm")
	}
}

func TestCurrentStateWithoutCookie(t *testing.T) {
	h, _ := newTestHandler(t)
	st, err := h.CurrentState(httptest.NewRequest(http.MethodGet, "/report", nil))
	if err != nil || st.Stage != flow.StageIntake {
		t.Fatalf("expected fresh intake state, got %s err=%v", st.Stage, err)
	}
}

func TestSurveyWarningsAreCollapsed(t *testing.T) {
	h, tmpl := newTestHandler(t)
	rr := postForm(h.SubmitIntake, nil, url.Values{
		"grade":          {"六年級"},
		"gender":         {"男"},
		"tutoring":       {"無"},
		"study_time":     {"1小時以下"},
		"question_count": {"10"},
	})
	cookie := sessionCookie(t, rr)
	st, err := h.svc.Current(context.Background(), cookie.Value)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	answerQuiz(t, h.svc, cookie.Value, st, 10)

	rr = postForm(h.SubmitSurvey, cookie, url.Values{"自主學習_1": {"符合"}})
	if rr.Code != http.StatusUnprocessableEntity || tmpl.name != "survey" {
		t.Fatalf("expected survey re-render, got %d %s", rr.Code, tmpl.name)
	}
	if len(tmpl.page.FieldWarnings) != 19 || len(tmpl.page.Warnings) != 1 {
		t.Fatalf("expected 19 marked items under one message, got %d/%d", len(tmpl.page.FieldWarnings), len(tmpl.page.Warnings))
	}
	if tmpl.page.Form["自主學習_1"] != "符合" {
		t.Fatalf("submitted answer not kept on the form")
	}
}
