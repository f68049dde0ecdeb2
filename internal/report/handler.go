package report

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"geoquiz/internal/app/apiresp"
	"geoquiz/internal/flow"
)

// StateSource resolves the session state that belongs to a request.
type StateSource interface {
	CurrentState(r *http.Request) (flow.State, error)
}

type Handler struct {
	svc    *Service
	states StateSource
}

func NewHandler(svc *Service, states StateSource) *Handler {
	return &Handler{svc: svc, states: states}
}

// Download streams the finished session's workbook to the browser.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	st, err := h.states.CurrentState(r)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	data, err := h.svc.Render(st)
	if err != nil {
		if errors.Is(err, ErrNotFinalized) {
			apiresp.WriteError(w, r, http.StatusConflict, err.Error())
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "export failed")
		return
	}

	name := FileName(time.Now())
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
