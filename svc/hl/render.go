package hl

import (
	"bytes"
	"html"

	"pbnj/metrics"
	"pbnj/pkg/domain"
	"pbnj/svc/util"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const DefaultPreviewLength = 200

type Renderer struct {
	engine     Engine
	theme      Theme
	previewLen int
}

// Rendered holds the two independent renders stored with a paste.
type Rendered struct {
	Code    string
	Preview string
}

func NewRenderer(engine Engine, theme string, previewLen int) *Renderer {
	if engine == nil {
		engine = Disabled{}
	}
	if previewLen <= 0 {
		previewLen = DefaultPreviewLength
	}
	return &Renderer{
		engine:     engine,
		theme:      ThemeColours(theme),
		previewLen: previewLen,
	}
}

// Render returns HTML for code. It tries the requested grammar, then the
// plaintext grammar, then escaped text.
func (r *Renderer) Render(code, language string) string {
	out, err := r.highlight(code, language)
	if err == nil {
		return out
	}
	if errors.Is(err, ErrEngineUnavailable) {
		return r.escaped(code)
	}
	if language != domain.PlainText {
		util.Debug().Err(err).Str("language", language).Msg("highlight failed, retrying as plaintext")
		metrics.RenderFallbacks.WithLabelValues("plaintext").Inc()
		out, err = r.highlight(code, domain.PlainText)
		if err == nil {
			return out
		}
	}
	util.Warn().Err(err).Str("language", language).Msg("plaintext highlight failed, escaping")
	return r.escaped(code)
}

// RenderPair renders the full code and its preview concurrently. Each goes
// through the fallback ladder on its own.
func (r *Renderer) RenderPair(code, language string) Rendered {
	var out Rendered
	var g errgroup.Group
	g.Go(func() error {
		out.Code = r.Render(code, language)
		return nil
	})
	g.Go(func() error {
		out.Preview = r.Render(util.Preview(code, r.previewLen), language)
		return nil
	})
	_ = g.Wait()
	return out
}

func (r *Renderer) Theme() Theme {
	return r.theme
}

func (r *Renderer) highlight(code, language string) (string, error) {
	var buf bytes.Buffer
	if err := r.engine.Highlight(&buf, code, language); err != nil {
		return "", err
	}
	if buf.Len() == 0 {
		return "", errors.New("empty highlight output")
	}
	return buf.String(), nil
}

func (r *Renderer) escaped(code string) string {
	metrics.RenderFallbacks.WithLabelValues("escaped").Inc()
	return `<pre class="pbnj-plain" style="background-color:` + r.theme.Background +
		`;color:` + r.theme.Foreground + `"><code>` + html.EscapeString(code) + `</code></pre>`
}
