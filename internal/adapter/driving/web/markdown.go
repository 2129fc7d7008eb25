package web

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ericfisherdev/scipguard/internal/domain/model"
)

var (
	mdRenderer    goldmark.Markdown
	htmlSanitizer *bluemonday.Policy
)

func init() {
	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	htmlSanitizer = bluemonday.UGCPolicy()
}

// RenderMarkdown converts a markdown string to sanitized HTML.
// Returns empty string for empty input.
func RenderMarkdown(src string) string {
	if src == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return htmlSanitizer.Sanitize(src)
	}

	return htmlSanitizer.Sanitize(buf.String())
}

// BuildReport summarizes records as markdown: totals by status and the
// riskiest commit. Server-provided text is placed in code spans.
func BuildReport(records []model.LogRecord) string {
	if len(records) == 0 {
		return "_No commits analyzed yet._"
	}

	var accepted, rejected int
	riskiest := records[0]
	for _, r := range records {
		switch r.Status {
		case model.CommitStatusAccepted:
			accepted++
		case model.CommitStatusRejected:
			rejected++
		}
		if r.RiskScore > riskiest.RiskScore {
			riskiest = r
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%d** commits analyzed: %d accepted, %d rejected.\n\n", len(records), accepted, rejected)
	fmt.Fprintf(&b, "Highest risk: %s scored **%g** (%s).\n",
		codeSpan(shortHash(riskiest.CommitHash)), riskiest.RiskScore, riskiest.RiskLevel())
	return b.String()
}

// codeSpan wraps s in a markdown code span that s cannot break out of.
func codeSpan(s string) string {
	if s == "" {
		return "`-`"
	}
	fence := "`"
	for strings.Contains(s, fence) {
		fence += "`"
	}
	return fence + " " + s + " " + fence
}
