package v1

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tinoosan/fota/internal/data"
	"github.com/tinoosan/fota/internal/history"
	"github.com/tinoosan/fota/internal/reqid"
)

// Updater is the part of the update engine the API drives.
type Updater interface {
	Status() data.Status
	IsRunning() bool
	ForceCheck()
}

type UpdateHandler struct {
	l       *slog.Logger
	updater Updater
	history history.Reader
}

type checkBody struct {
	Reason string `json:"reason"`
}

type rwLogger struct {
	http.ResponseWriter
	status int
	bytes  int
	err    error
}

func (w *rwLogger) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *rwLogger) SetErr(err error) {
	w.err = err
}

func (w *rwLogger) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Hijack lets websocket upgrades pass through the logging middleware.
func (w *rwLogger) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

type errorSetter interface {
	SetErr(error)
}

func markErr(w http.ResponseWriter, err error) {
	if es, ok := w.(errorSetter); ok {
		es.SetErr(err)
	}
}

func NewUpdateHandler(l *slog.Logger, upd Updater, hist history.Reader) *UpdateHandler {
	if l == nil {
		l = slog.Default()
	}
	return &UpdateHandler{l: l, updater: upd, history: hist}
}

func (h *UpdateHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st := h.updater.Status()
	w.Header().Set("Content-Type", "application/json")
	if err := st.ToJSON(w); err != nil {
		markErr(w, err)
		http.Error(w, "Unable to marshal json", http.StatusInternalServerError)
	}
}

// PostCheck requests an immediate version check. The body is optional.
func (h *UpdateHandler) PostCheck(w http.ResponseWriter, r *http.Request) {
	var body checkBody
	if err := decodeJSONStrict(w, r, &body, 1<<10, "application/json"); err != nil {
		markErr(w, err)
		if errors.Is(err, ErrContentType) {
			http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
			return
		}
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !h.updater.IsRunning() {
		markErr(w, ErrNotRunning)
		http.Error(w, ErrNotRunning.Error(), http.StatusConflict)
		return
	}
	h.updater.ForceCheck()
	id, _ := reqid.From(r.Context())
	h.l.Info("forced check requested", "request_id", id, "reason", body.Reason)
	_ = writeJSON(w, http.StatusAccepted, h.updater.Status())
}

func (h *UpdateHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	list, err := h.history.List(r.Context())
	if err != nil {
		markErr(w, err)
		http.Error(w, "failed to list history", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = data.Attempts{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = list.ToJSON(w)
}

func (h *UpdateHandler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		markErr(w, ErrAttemptID)
		http.Error(w, ErrAttemptID.Error(), http.StatusBadRequest)
		return
	}
	a, err := h.history.Get(r.Context(), id)
	if err != nil {
		markErr(w, err)
		if errors.Is(err, data.ErrNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to get attempt", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = a.ToJSON(w)
}
