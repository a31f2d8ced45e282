// Package format turns assistant text into the lightweight markup shown in
// chat bubbles.
package format

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
)

// EscapeMode controls what happens to raw HTML in the input before the
// formatting rules run.
type EscapeMode string

const (
	// EscapeHTML escapes <, >, &, ' and " so backend text cannot inject markup.
	EscapeHTML EscapeMode = "html"
	// StripHTML removes tags entirely and escapes what remains.
	StripHTML EscapeMode = "strip"
	// EscapeNone passes the text through untouched.
	EscapeNone EscapeMode = "none"
)

// ParseEscapeMode validates a configured mode. Empty means EscapeHTML.
func ParseEscapeMode(raw string) (EscapeMode, error) {
	switch mode := EscapeMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return EscapeHTML, nil
	case EscapeHTML, StripHTML, EscapeNone:
		return mode, nil
	default:
		return "", errors.Errorf("unknown escape mode %q", raw)
	}
}

// Rule is one step of the formatting pipeline.
type Rule struct {
	Name  string
	Apply func(string) string
}

// spaceClass is every character a browser regex treats as whitespace; RE2's
// \s alone is ASCII-only.
const spaceClass = `\s\v\p{Z}\x{FEFF}`

var (
	headingPattern  = regexp.MustCompile(`(?m)^#{1,3}[` + spaceClass + `]+`)
	boldPattern     = regexp.MustCompile(`\*\*(.*?)\*\*`)
	urlPattern      = regexp.MustCompile(`(?i)https?://[^` + spaceClass + `<\]]+`)
	mdLinkPattern   = regexp.MustCompile(`\[(.*?)\]\((https?://[^)]+)\)`)
	bulletPattern   = regexp.MustCompile(`(?m)^- `)
	blankRunPattern = regexp.MustCompile(`\n\n+`)
)

var (
	StripHeadings = Rule{Name: "strip-headings", Apply: func(s string) string {
		return headingPattern.ReplaceAllString(s, "")
	}}
	Embolden = Rule{Name: "embolden", Apply: func(s string) string {
		return boldPattern.ReplaceAllString(s, "<span class='chat-bold'>${1}</span>")
	}}
	LinkURLs = Rule{Name: "link-urls", Apply: func(s string) string {
		return urlPattern.ReplaceAllStringFunc(s, func(url string) string {
			return `<a href="` + url + `" target="_blank" class="chat-link">` + url + `</a>`
		})
	}}
	// LinkMarkdown runs after LinkURLs, so a [label](url) whose url was
	// already linked no longer matches.
	LinkMarkdown = Rule{Name: "link-markdown", Apply: func(s string) string {
		return mdLinkPattern.ReplaceAllString(s, "<a href='${2}' target='_blank' class='chat-link'>${1}</a>")
	}}
	Bulletize = Rule{Name: "bulletize", Apply: func(s string) string {
		return bulletPattern.ReplaceAllString(s, "• ")
	}}
	CollapseBreaks = Rule{Name: "collapse-breaks", Apply: func(s string) string {
		return blankRunPattern.ReplaceAllString(s, "\n")
	}}
	BreakLines = Rule{Name: "break-lines", Apply: func(s string) string {
		return strings.ReplaceAll(s, "\n", "<br>")
	}}
)

// DefaultRules returns the pipeline in the order it must run.
func DefaultRules() []Rule {
	return []Rule{StripHeadings, Embolden, LinkURLs, LinkMarkdown, Bulletize, CollapseBreaks, BreakLines}
}

// Formatter renders raw text into bubble markup. The zero value is not usable;
// construct with New.
type Formatter struct {
	escape EscapeMode
	rules  []Rule
	strict *bluemonday.Policy
}

// Option customises a Formatter.
type Option func(*Formatter)

// WithEscapeMode selects the pre-pass applied before the rules.
func WithEscapeMode(mode EscapeMode) Option {
	return func(f *Formatter) { f.escape = mode }
}

// WithRules replaces the rule pipeline.
func WithRules(rules ...Rule) Option {
	return func(f *Formatter) { f.rules = append([]Rule(nil), rules...) }
}

// New builds a Formatter with the default pipeline and HTML escaping.
func New(opts ...Option) *Formatter {
	f := &Formatter{escape: EscapeHTML, rules: DefaultRules()}
	for _, opt := range opts {
		opt(f)
	}
	if f.escape == StripHTML {
		f.strict = bluemonday.StrictPolicy()
	}
	return f
}

// EscapeMode reports the configured pre-pass.
func (f *Formatter) EscapeMode() EscapeMode {
	return f.escape
}

// Render applies the pre-pass and every rule in order. It never fails; text
// no rule matches comes back unchanged apart from escaping.
func (f *Formatter) Render(raw string) string {
	out := f.sanitize(raw)
	for _, rule := range f.rules {
		out = rule.Apply(out)
	}
	return out
}

func (f *Formatter) sanitize(raw string) string {
	switch f.escape {
	case EscapeNone:
		return raw
	case StripHTML:
		return f.strict.Sanitize(raw)
	default:
		return html.EscapeString(raw)
	}
}
