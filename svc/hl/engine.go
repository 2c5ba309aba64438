// Package hl renders paste code to HTML. Rendering never fails: when the
// engine or the requested grammar is unusable it degrades to plain-text
// highlighting and finally to escaped text styled with the theme colours.
package hl

import (
	"io"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/pkg/errors"
)

var (
	ErrEngineUnavailable = errors.New("highlight engine unavailable")
	ErrUnknownLanguage   = errors.New("unknown language")
)

// Engine writes highlighted HTML for code in the given language.
type Engine interface {
	Highlight(w io.Writer, code, language string) error
}

type Chroma struct {
	style     *chroma.Style
	formatter *html.Formatter
}

func NewChroma(theme string) *Chroma {
	return &Chroma{
		style: styles.Get(theme),
		formatter: html.New(
			html.WithClasses(false),
			html.TabWidth(4),
		),
	}
}

func (c *Chroma) Highlight(w io.Writer, code, language string) error {
	lexer := lexers.Get(language)
	if lexer == nil {
		return errors.Wrapf(ErrUnknownLanguage, "lexer %q", language)
	}
	it, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		return errors.Wrap(err, "tokenise")
	}
	return errors.Wrap(c.formatter.Format(w, c.style, it), "format")
}

// Disabled is the engine for deployments that turn highlighting off.
type Disabled struct{}

func (Disabled) Highlight(io.Writer, string, string) error {
	return ErrEngineUnavailable
}

type Theme struct {
	Background string
	Foreground string
}

// ThemeColours reads the background entry of a chroma style. Unknown names
// resolve to chroma's fallback style.
func ThemeColours(name string) Theme {
	entry := styles.Get(name).Get(chroma.Background)
	t := Theme{Background: "#ffffff", Foreground: "#000000"}
	if entry.Background.IsSet() {
		t.Background = entry.Background.String()
	}
	if entry.Colour.IsSet() {
		t.Foreground = entry.Colour.String()
	}
	return t
}
