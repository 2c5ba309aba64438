// Package lang maps filenames and explicit overrides to canonical language
// tags shared by storage and the highlighter.
package lang

import (
	"path"
	"strings"

	"pbnj/pkg/domain"
)

// extensions maps a lowercase file extension to a canonical tag. Every tag
// must name a chroma lexer.
var extensions = map[string]string{
	"js":         "javascript",
	"ts":         "typescript",
	"py":         "python",
	"rb":         "ruby",
	"go":         "go",
	"rs":         "rust",
	"java":       "java",
	"cpp":        "cpp",
	"c":          "c",
	"cs":         "csharp",
	"php":        "php",
	"sh":         "bash",
	"bash":       "bash",
	"zsh":        "bash",
	"html":       "html",
	"css":        "css",
	"json":       "json",
	"xml":        "xml",
	"yaml":       "yaml",
	"yml":        "yaml",
	"md":         "markdown",
	"sql":        "sql",
	"swift":      "swift",
	"kt":         "kotlin",
	"scala":      "scala",
	"r":          "r",
	"lua":        "lua",
	"pl":         "perl",
	"ex":         "elixir",
	"exs":        "elixir",
	"erl":        "erlang",
	"hs":         "haskell",
	"ml":         "ocaml",
	"clj":        "clojure",
	"vim":        "vim",
	"dockerfile": "dockerfile",
	"toml":       "toml",
	"ini":        "ini",
	"txt":        domain.PlainText,
}

// basenames covers files identified by name rather than extension.
var basenames = map[string]string{
	"dockerfile":     "dockerfile",
	"containerfile":  "dockerfile",
	"makefile":       "makefile",
	"gnumakefile":    "makefile",
	"cmakelists.txt": "cmake",
	"gemfile":        "ruby",
	"rakefile":       "ruby",
}

// Resolve returns override lowercased when it is non-empty, otherwise the tag
// for filename's base name or extension, otherwise plaintext.
func Resolve(filename, override string) string {
	if o := Canonical(override); o != "" {
		return o
	}
	if tag, ok := basenames[strings.ToLower(baseName(filename))]; ok {
		return tag
	}
	if tag, ok := extensions[Extension(filename)]; ok {
		return tag
	}
	return domain.PlainText
}

func Canonical(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// Extension returns the lowercase segment after the last dot of the base
// name, or "" when there is none.
func Extension(filename string) string {
	base := baseName(filename)
	i := strings.LastIndexByte(base, '.')
	if i < 0 || i == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

func baseName(filename string) string {
	return path.Base(strings.ReplaceAll(filename, "\\", "/"))
}

// Tags returns every distinct tag the basename and extension tables can
// produce.
func Tags() []string {
	seen := make(map[string]bool)
	var out []string
	for _, table := range []map[string]string{basenames, extensions} {
		for _, tag := range table {
			if !seen[tag] {
				seen[tag] = true
				out = append(out, tag)
			}
		}
	}
	return out
}
