// Package highlight renders code blocks as classed HTML using chroma lexers.
package highlight

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"golang.org/x/net/html"
)

// PlainLanguage is reported for sources rendered without a lexer.
const PlainLanguage = "text"

var defaultAliases = map[string]string{
	"py":      "python",
	"py3":     "python",
	"js":      "javascript",
	"ts":      "typescript",
	"sh":      "bash",
	"shell":   "bash",
	"zsh":     "bash",
	"yml":     "yaml",
	"rs":      "rust",
	"c++":     "cpp",
	"golang":  "go",
	"rb":      "ruby",
	"md":      "markdown",
	"rst":     "restructuredtext",
	"console": "bash",
}

// Options are presentation flags for one block.
type Options struct {
	LineNumbers bool
	CopyButton  bool
	Caption     string
}

// Highlighter resolves language names and renders highlighted markup.
type Highlighter struct {
	aliases map[string]string
}

// New returns a Highlighter. extra aliases override the built-in table.
func New(extra map[string]string) *Highlighter {
	aliases := make(map[string]string, len(defaultAliases)+len(extra))
	for k, v := range defaultAliases {
		aliases[k] = v
	}
	for k, v := range extra {
		aliases[strings.ToLower(k)] = strings.ToLower(v)
	}
	return &Highlighter{aliases: aliases}
}

// Resolve maps a declared language to a lexer. A nil lexer means plain text.
func (h *Highlighter) Resolve(language string) (chroma.Lexer, string) {
	name := strings.ToLower(strings.TrimSpace(language))
	if name == "" || name == PlainLanguage || name == "none" {
		return nil, PlainLanguage
	}
	if alias, ok := h.aliases[name]; ok {
		name = alias
	}
	lexer := lexers.Get(name)
	if lexer == nil {
		return nil, PlainLanguage
	}
	return chroma.Coalesce(lexer), name
}

// Highlight renders source. Unknown languages fall back to escaped plain text.
func (h *Highlighter) Highlight(language, source string, opts Options) string {
	source = strings.TrimRight(strings.ReplaceAll(source, "\r\n", "\n"), "\n")
	lexer, name := h.Resolve(language)

	lines := plainLines(source)
	if lexer != nil {
		if it, err := lexer.Tokenise(nil, source+"\n"); err == nil {
			lines = chroma.SplitTokensIntoLines(it.Tokens())
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<div class="highlight" data-language="%s">`, html.EscapeString(name))
	if opts.Caption != "" {
		fmt.Fprintf(&b, `<div class="code-caption">%s</div>`, html.EscapeString(opts.Caption))
	}
	if opts.CopyButton {
		b.WriteString(`<button class="copy-button" type="button">Copy</button>`)
	}
	fmt.Fprintf(&b, `<pre class="chroma"><code class="language-%s">`, html.EscapeString(name))
	for i, tokens := range lines {
		if opts.LineNumbers {
			n := strconv.Itoa(i + 1)
			b.WriteString(`<span class="line" data-line="` + n + `"><span class="ln">` + n + `</span>`)
		} else {
			b.WriteString(`<span class="line">`)
		}
		writeTokens(&b, tokens)
		b.WriteString("</span>")
		if i < len(lines)-1 {
			b.WriteByte('\n')
		}
	}
	b.WriteString("</code></pre></div>")
	return b.String()
}

func plainLines(source string) [][]chroma.Token {
	raw := strings.Split(source, "\n")
	out := make([][]chroma.Token, len(raw))
	for i, l := range raw {
		out[i] = []chroma.Token{{Type: chroma.Text, Value: l}}
	}
	return out
}

// tokenFormatter writes the classed token spans of one line; the line wrapper with its
// data-line attribute is written by Highlight.
var tokenFormatter = chromahtml.New(chromahtml.WithClasses(true), chromahtml.PreventSurroundingPre(true))

func writeTokens(b *strings.Builder, tokens []chroma.Token) {
	line := make([]chroma.Token, 0, len(tokens))
	for _, tok := range tokens {
		tok.Value = strings.TrimSuffix(tok.Value, "\n")
		if tok.Value != "" {
			line = append(line, tok)
		}
	}
	_ = tokenFormatter.Format(b, styles.Fallback, chroma.Literator(line...))
}

// CSS returns the stylesheet for a chroma style name. Unknown names use the fallback style.
func CSS(style string) (string, error) {
	s := styles.Get(style)
	if s == nil {
		s = styles.Fallback
	}
	var buf bytes.Buffer
	if err := chromahtml.New(chromahtml.WithClasses(true)).WriteCSS(&buf, s); err != nil {
		return "", fmt.Errorf("write chroma css: %w", err)
	}
	return buf.String(), nil
}
