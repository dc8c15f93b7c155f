// Package render turns transcript text into display markup.
package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"foneai-widget/internal/chat"
)

// Mode selects how message text becomes HTML.
type Mode string

const (
	// ModeBreaks escapes the text, then maps line breaks to <p>/<br>.
	ModeBreaks Mode = "breaks"
	// ModeMarkdown renders markdown and sanitizes the result.
	ModeMarkdown Mode = "markdown"
	// ModeRaw maps line breaks and inserts everything else verbatim. Only for
	// responders whose output is trusted markup.
	ModeRaw Mode = "raw"
)

// ParseMode maps a config value to a Mode. Empty selects ModeBreaks.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeBreaks:
		return ModeBreaks, nil
	case ModeMarkdown:
		return ModeMarkdown, nil
	case ModeRaw:
		return ModeRaw, nil
	}
	return "", fmt.Errorf("unknown render mode %q", s)
}

// Formatter renders message text as HTML.
type Formatter struct {
	mode Mode
	ugc  *bluemonday.Policy
}

func NewFormatter(mode Mode) *Formatter {
	return &Formatter{
		mode: mode,
		ugc:  bluemonday.UGCPolicy(),
	}
}

func (f *Formatter) Mode() Mode { return f.mode }

// HTML renders one message body.
func (f *Formatter) HTML(text string) string {
	switch f.mode {
	case ModeMarkdown:
		return f.markdown(text)
	case ModeRaw:
		return Breaks(text)
	default:
		return Breaks(html.EscapeString(text))
	}
}

// MessageHTML wraps a rendered message in a bubble div carrying its role classes.
func (f *Formatter) MessageHTML(m chat.Message) string {
	return `<div class="` + classes(m.Role) + `">` + f.HTML(m.Text) + `</div>`
}

// Transcript renders every message in order. It is a pure function of msgs.
func (f *Formatter) Transcript(msgs []chat.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(f.MessageHTML(m))
	}
	return b.String()
}

// Breaks applies the line-break transform: a blank line separates paragraphs and
// a single newline becomes <br>. The result is wrapped in one paragraph.
func Breaks(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\n\n", "</p><p>")
	text = strings.ReplaceAll(text, "\n", "<br>")
	return "<p>" + text + "</p>"
}

func (f *Formatter) markdown(text string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.HardLineBreak)
	r := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags | mdhtml.SkipHTML})
	out := markdown.ToHTML([]byte(text), p, r)
	return strings.TrimSpace(string(f.ugc.SanitizeBytes(out)))
}

func classes(role chat.Role) string {
	switch role {
	case chat.RoleUser:
		return "message user-message"
	case chat.RoleError:
		return "message ai-message error-message"
	default:
		return "message ai-message"
	}
}
