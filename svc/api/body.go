package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"pbnj/pkg/domain"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

type bodyKind int

const (
	kindRaw bodyKind = iota
	kindJSON
	kindMultipart
)

// envelope room for JSON escaping and multipart boundaries
const bodyOverhead = 64 * 1024

func kindOf(contentType string) bodyKind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return kindRaw
	}
	switch mediaType {
	case "application/json":
		return kindJSON
	case "multipart/form-data":
		return kindMultipart
	}
	return kindRaw
}

type createJSON struct {
	Code     string          `json:"code"`
	Language string          `json:"language"`
	Filename string          `json:"filename"`
	Private  json.RawMessage `json:"private"`
	Key      json.RawMessage `json:"key"`
}

// parseCreate reads a create request body into params. Which shape it reads
// is decided by Content-Type alone.
func parseCreate(w http.ResponseWriter, r *http.Request, maxSize int64) (domain.CreateParams, error) {
	kind := kindOf(r.Header.Get("Content-Type"))
	limit := maxSize
	if kind != kindRaw {
		limit += bodyOverhead
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var p domain.CreateParams
	var err error
	switch kind {
	case kindJSON:
		p, err = parseJSON(r.Body)
	case kindMultipart:
		p, err = parseMultipart(r, limit)
	default:
		p, err = parseRaw(r.Body)
	}
	if err != nil {
		return p, sizeErr(err)
	}
	if p.Code == "" {
		return p, domain.ErrContentRequired
	}
	if int64(len(p.Code)) > maxSize {
		return p, domain.ErrPasteTooLarge
	}
	p.Filename = cleanFilename(p.Filename)
	return p, nil
}

func parseJSON(body io.Reader) (domain.CreateParams, error) {
	var req createJSON
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return domain.CreateParams{}, errors.Wrap(err, "decode json body")
	}
	key, err := parseJSONKey(req.Key)
	if err != nil {
		return domain.CreateParams{}, err
	}
	return domain.CreateParams{
		Code:     req.Code,
		Language: req.Language,
		Filename: req.Filename,
		Private:  jsonTrue(req.Private),
		Key:      key,
	}, nil
}

// jsonTrue reports whether raw is the literal true. Any other value,
// including the string "true", leaves the paste public.
func jsonTrue(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "true"
}

// parseJSONKey accepts true (generate), a string (use as is), or
// false/null/"" (no key).
func parseJSONKey(raw json.RawMessage) (domain.KeyRequest, error) {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false":
		return domain.KeyRequest{}, nil
	case "true":
		return domain.KeyRequest{Generate: true}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.KeyRequest{}, domain.ErrInvalidRequest
	}
	return domain.KeyRequest{Value: s}, nil
}

func parseMultipart(r *http.Request, limit int64) (domain.CreateParams, error) {
	if err := r.ParseMultipartForm(limit); err != nil {
		return domain.CreateParams{}, errors.Wrap(err, "parse multipart")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return domain.CreateParams{}, domain.ErrFileRequired
		}
		return domain.CreateParams{}, errors.Wrap(err, "open file part")
	}
	defer file.Close()
	code, err := io.ReadAll(file)
	if err != nil {
		return domain.CreateParams{}, errors.Wrap(err, "read file part")
	}
	p := domain.CreateParams{
		Code:     string(code),
		Language: r.FormValue("language"),
		Filename: header.Filename,
		Private:  r.FormValue("private") == "true",
	}
	switch key := r.FormValue("key"); key {
	case "", "false":
	case "true":
		p.Key.Generate = true
	default:
		p.Key.Value = key
	}
	return p, nil
}

// parseRaw takes the whole body as plain text.
func parseRaw(body io.Reader) (domain.CreateParams, error) {
	code, err := io.ReadAll(body)
	if err != nil {
		return domain.CreateParams{}, errors.Wrap(err, "read body")
	}
	return domain.CreateParams{Code: string(code), Language: domain.PlainText}, nil
}

// sizeErr maps a body that ran past MaxBytesReader to 413 and any other
// malformed body to 400.
func sizeErr(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return domain.ErrPasteTooLarge
	}
	if _, ok := errors.Cause(err).(*domain.Err); ok {
		return err
	}
	return domain.ErrInvalidRequest
}

// cleanFilename keeps the base name, NFC-normalised, without control
// characters.
func cleanFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	name = norm.NFC.String(name)
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, name)
}
