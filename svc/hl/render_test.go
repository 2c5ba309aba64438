package hl

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

// recordingEngine fails for the listed languages, or for any input longer
// than maxLen when maxLen > 0. It records every language it was asked for.
type recordingEngine struct {
	mu     sync.Mutex
	fail   map[string]error
	maxLen int
	calls  []string
}

func (e *recordingEngine) Highlight(w io.Writer, code, language string) error {
	e.mu.Lock()
	e.calls = append(e.calls, language)
	e.mu.Unlock()
	if err, ok := e.fail[language]; ok {
		return err
	}
	if e.maxLen > 0 && utf8.RuneCountInString(code) > e.maxLen {
		return ErrUnknownLanguage
	}
	_, err := io.WriteString(w, "<hl lang="+language+">"+code+"</hl>")
	return err
}

func TestRenderHighlightsKnownLanguage(t *testing.T) {
	r := NewRenderer(NewChroma("monokai"), "monokai", 0)
	out := r.Render("print(1)", "python")
	if !strings.Contains(out, "<pre") {
		t.Fatalf("expected <pre> wrapper, got %q", out)
	}
	if !strings.Contains(out, "<span") {
		t.Errorf("expected highlighted spans, got %q", out)
	}
	if strings.Contains(out, "pbnj-plain") {
		t.Errorf("known language fell back to escaped output")
	}
}

func TestRenderUnknownLanguageNeverEmpty(t *testing.T) {
	r := NewRenderer(NewChroma("monokai"), "monokai", 0)
	out := r.Render("<b>hi</b>", "nonexistent-lang")
	if out == "" {
		t.Fatal("empty render")
	}
	if strings.Contains(out, "<b>") {
		t.Errorf("raw markup leaked into output: %q", out)
	}
}

func TestRenderRetriesPlaintextOnce(t *testing.T) {
	eng := &recordingEngine{fail: map[string]error{"klingon": ErrUnknownLanguage}}
	r := NewRenderer(eng, "monokai", 0)
	out := r.Render("qapla", "klingon")
	if out != "<hl lang=plaintext>qapla</hl>" {
		t.Errorf("got %q, want plaintext highlight", out)
	}
	if len(eng.calls) != 2 || eng.calls[0] != "klingon" || eng.calls[1] != "plaintext" {
		t.Errorf("calls = %v, want [klingon plaintext]", eng.calls)
	}
}

func TestRenderEscapesWhenPlaintextFails(t *testing.T) {
	eng := &recordingEngine{fail: map[string]error{
		"go":        ErrUnknownLanguage,
		"plaintext": errors.New("boom"),
	}}
	r := NewRenderer(eng, "monokai", 0)
	theme := r.Theme()
	out := r.Render(`a<b>&"c"'d'`, "go")
	want := `<pre class="pbnj-plain" style="background-color:` + theme.Background +
		`;color:` + theme.Foreground + `"><code>a&lt;b&gt;&amp;&#34;c&#34;&#39;d&#39;</code></pre>`
	if out != want {
		t.Errorf("got  %q\nwant %q", out, want)
	}
}

func TestRenderSkipsRetryWhenEngineUnavailable(t *testing.T) {
	eng := &recordingEngine{fail: map[string]error{"python": ErrEngineUnavailable}}
	r := NewRenderer(eng, "monokai", 0)
	out := r.Render("x = 1", "python")
	if !strings.HasPrefix(out, `<pre class="pbnj-plain"`) {
		t.Errorf("expected escaped fallback, got %q", out)
	}
	if len(eng.calls) != 1 {
		t.Errorf("engine called %d times, want 1", len(eng.calls))
	}
}

func TestDisabledEngineUsesThemeColours(t *testing.T) {
	r := NewRenderer(Disabled{}, "monokai", 0)
	theme := ThemeColours("monokai")
	out := r.Render("hello", "python")
	if !strings.Contains(out, "background-color:"+theme.Background) ||
		!strings.Contains(out, "color:"+theme.Foreground) {
		t.Errorf("fallback not styled with theme %+v: %q", theme, out)
	}
}

func TestThemeColoursAreHex(t *testing.T) {
	theme := ThemeColours("monokai")
	for _, c := range []string{theme.Background, theme.Foreground} {
		if len(c) != 7 || c[0] != '#' {
			t.Errorf("colour %q is not #rrggbb", c)
		}
	}
	if theme.Background == theme.Foreground {
		t.Errorf("background and foreground are both %s", theme.Background)
	}
}

func TestRenderPairIndependentFallbacks(t *testing.T) {
	eng := &recordingEngine{maxLen: 10}
	r := NewRenderer(eng, "monokai", 5)
	got := r.RenderPair("0123456789abcdef", "go")
	if !strings.HasPrefix(got.Code, `<pre class="pbnj-plain"`) {
		t.Errorf("full body should have fallen back, got %q", got.Code)
	}
	if got.Preview != "<hl lang=go>01234</hl>" {
		t.Errorf("preview = %q, want highlighted 5-char prefix", got.Preview)
	}
}

func TestRenderPairShortCode(t *testing.T) {
	r := NewRenderer(NewChroma("monokai"), "monokai", 200)
	got := r.RenderPair("fn main() {}", "rust")
	if got.Code == "" || got.Preview == "" {
		t.Fatalf("empty render: %+v", got)
	}
	if got.Code != got.Preview {
		t.Errorf("code shorter than preview length should render identically")
	}
}

func TestNewRendererDefaults(t *testing.T) {
	r := NewRenderer(nil, "no-such-theme", 0)
	if r.previewLen != DefaultPreviewLength {
		t.Errorf("previewLen = %d, want %d", r.previewLen, DefaultPreviewLength)
	}
	if out := r.Render("x", "go"); !strings.HasPrefix(out, `<pre class="pbnj-plain"`) {
		t.Errorf("nil engine should render escaped, got %q", out)
	}
}
