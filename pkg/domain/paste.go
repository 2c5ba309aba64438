package domain

import (
	"time"
)

const (
	// PlainText is the canonical tag for content with no recognised language.
	PlainText = "plaintext"
	// PageSize is the number of pastes returned per listing page.
	PageSize = 20
	// ListPreviewLength is the number of characters of code in a listing item.
	ListPreviewLength = 200
)

type Paste struct {
	ID                 string `json:"id"`
	Code               string `json:"code"`
	Language           string `json:"language"`
	Filename           string `json:"filename,omitempty"`
	CreatedAt          int64  `json:"createdAt"`
	UpdatedAt          int64  `json:"updatedAt"`
	IsPrivate          bool   `json:"isPrivate"`
	SecretKey          string `json:"-"`
	HighlightedCode    string `json:"highlightedCode,omitempty"`
	HighlightedPreview string `json:"highlightedPreview,omitempty"`
}

// HasKey reports whether reading the paste requires a secret key.
func (p *Paste) HasKey() bool {
	return p.SecretKey != ""
}

// Rendered reports whether the paste carries a precomputed render.
func (p *Paste) Rendered() bool {
	return p.HighlightedCode != ""
}

// KeyRequest is the client's instruction for the secret key: either generate
// a fresh one or use Value verbatim. The zero value means no key.
type KeyRequest struct {
	Generate bool
	Value    string
}

func (k KeyRequest) Present() bool {
	return k.Generate || k.Value != ""
}

type CreateParams struct {
	Code     string
	Language string
	Filename string
	Private  bool
	Key      KeyRequest
}

type ListItem struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Updated  int64  `json:"updated"`
	Filename string `json:"filename,omitempty"`
	Preview  string `json:"preview"`
}

type ListPage struct {
	Pastes     []ListItem `json:"pastes"`
	NextCursor *int       `json:"nextCursor"`
}

// NowMillis returns the current time as milliseconds since epoch.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
