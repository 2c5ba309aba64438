package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"pbnj/cfg"
	"pbnj/pkg/domain"
	"pbnj/svc/svc"
	"pbnj/svc/util"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

type Hdl struct {
	paste *svc.Paste
	cfg   *cfg.Cfg
}
type CreateResp struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Private bool   `json:"private"`
}
type DeleteResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	params, err := parseCreate(w, r, h.cfg.MaxPasteSize)
	if err != nil {
		log.Warn().Err(err).Str("content_type", r.Header.Get("Content-Type")).Msg("rejected create body")
		writeErr(w, err, requestID)
		return
	}
	paste, err := h.paste.Create(r.Context(), params)
	if err != nil {
		writeErr(w, err, requestID)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateResp{
		ID:      paste.ID,
		URL:     h.pasteURL(r, paste),
		Private: paste.IsPrivate,
	})
}

func (h *Hdl) ListPastes(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	cursor := 0
	if s := r.URL.Query().Get("cursor"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeErr(w, domain.ErrInvalidRequest, requestID)
			return
		}
		cursor = n
	}
	page, err := h.paste.List(r.Context(), cursor)
	if err != nil {
		writeErr(w, err, requestID)
		return
	}
	json.NewEncoder(w).Encode(page)
}

func (h *Hdl) DeletePaste(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	requestID := util.GetRequestID(r.Context())
	if err := h.paste.Delete(r.Context(), id); err != nil {
		writeErr(w, err, requestID)
		return
	}
	hlog.FromRequest(r).Info().Str("paste_id", id).Msg("paste deleted")
	json.NewEncoder(w).Encode(DeleteResp{Success: true, Message: "Paste deleted successfully"})
}

// RawPaste serves the code exactly as stored.
func (h *Hdl) RawPaste(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	paste, err := h.paste.Get(r.Context(), id, r.URL.Query().Get("key"))
	if err != nil {
		status := domain.Status(err)
		msg := http.StatusText(status)
		if status >= 500 {
			util.Error().Err(err).
				Str("id", id).
				Str("request_id", util.GetRequestID(r.Context())).
				Msg("raw fetch failed")
			msg = "Internal server error"
		}
		http.Error(w, msg, status)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Write([]byte(paste.Code))
}

// pasteURL is the shareable link: origin, id, and the key when there is one.
func (h *Hdl) pasteURL(r *http.Request, p *domain.Paste) string {
	u := h.origin(r) + "/" + url.PathEscape(p.ID)
	if p.HasKey() {
		u += "?key=" + url.QueryEscape(p.SecretKey)
	}
	return u
}

func (h *Hdl) origin(r *http.Request) string {
	if h.cfg.PublicURL != "" {
		return h.cfg.PublicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	} else if len(h.cfg.TrustedProxies) > 0 {
		if p := strings.ToLower(r.Header.Get("X-Forwarded-Proto")); p == "https" || p == "http" {
			scheme = p
		}
	}
	return scheme + "://" + r.Host
}

func writeErr(w http.ResponseWriter, err error, requestID string) {
	statusCode := domain.Status(err)
	errorMsg := domain.ToResp(err).Error.Msg
	if statusCode >= 500 {
		errorMsg = "internal server error"
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error with detailed info")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error":      errorMsg,
		"request_id": requestID,
	})
}
