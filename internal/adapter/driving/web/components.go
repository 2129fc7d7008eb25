package web

import (
	"context"
	"io"

	"github.com/a-h/templ"

	vm "github.com/ericfisherdev/scipguard/internal/adapter/driving/web/viewmodel"
)

// htmlWriter writes markup and remembers the first error.
type htmlWriter struct {
	w   io.Writer
	err error
}

// raw writes trusted markup.
func (h *htmlWriter) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

// text writes s escaped for element content and quoted attribute values.
func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *htmlWriter) component(ctx context.Context, c templ.Component) {
	if h.err == nil {
		h.err = c.Render(ctx, h.w)
	}
}

func (h *htmlWriter) csrfField(token string) {
	h.raw(`<input type="hidden" name="` + csrfFormField + `" value="`)
	h.text(token)
	h.raw(`">`)
}

func (h *htmlWriter) flash(notice, errMsg string) {
	if notice != "" {
		h.raw(`<div class="banner notice">`)
		h.text(notice)
		h.raw(`</div>`)
	}
	if errMsg != "" {
		h.raw(`<div class="banner error">`)
		h.text(errMsg)
		h.raw(`</div>`)
	}
}

// Layout wraps body in the HTML document shell.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		h.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		h.raw(`<title>`)
		h.text(title)
		h.raw(`</title><link rel="stylesheet" href="/static/app.css"></head><body>`)
		h.component(ctx, body)
		h.raw(`</body></html>`)
		return h.err
	})
}

// PendingPage is shown while the session is being restored.
func PendingPage() templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<main class="pending"><p>Restoring your session&hellip;</p></main>`)
		return h.err
	})
}

// LoginPage renders the login and registration forms.
func LoginPage(m vm.LoginViewModel) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<main class="auth"><h1>SCIP Guard</h1>`)
		h.flash(m.Notice, m.Error)

		h.raw(`<form id="login" method="post" action="/login"><h2>Log in</h2>`)
		h.csrfField(m.CSRFToken)
		h.raw(`<label>Email <input type="email" name="email" required value="`)
		h.text(m.Email)
		h.raw(`"></label>`)
		h.raw(`<label>Password <input type="password" name="password" required></label>`)
		h.raw(`<button type="submit">Log in</button></form>`)

		h.raw(`<form id="register" method="post" action="/register"><h2>Create account</h2>`)
		h.csrfField(m.CSRFToken)
		h.raw(`<label>Username <input type="text" name="username" required></label>`)
		h.raw(`<label>Email <input type="email" name="email" required></label>`)
		h.raw(`<label>Password <input type="password" name="password" required></label>`)
		h.raw(`<button type="submit">Register</button></form>`)

		h.raw(`</main>`)
		return h.err
	})
}

// DashboardPage renders the audit log, the report and the submission form.
func DashboardPage(m vm.DashboardViewModel) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}

		h.raw(`<header><h1>SCIP Guard</h1><span class="user">`)
		h.text(m.Username)
		h.raw(` &lt;`)
		h.text(m.Email)
		h.raw(`&gt;</span><form method="post" action="/logout">`)
		h.csrfField(m.CSRFToken)
		h.raw(`<button type="submit">Log out</button></form></header><main>`)

		h.flash(m.Notice, m.Error)
		if m.LastError != "" {
			h.raw(`<div class="banner warn sync-error">Sync problem: `)
			h.text(m.LastError)
			h.raw(`</div>`)
		}

		h.raw(`<section class="report">`)
		h.raw(m.ReportHTML)
		h.raw(`</section>`)

		h.raw(`<section class="analyze"><h2>Submit code</h2><form method="post" action="/analyze">`)
		h.csrfField(m.CSRFToken)
		h.raw(`<textarea name="code_content" rows="10" required>`)
		h.text(m.Code)
		h.raw(`</textarea><button type="submit">Analyze</button></form></section>`)

		h.raw(`<section class="logs"><h2>Audit log</h2>`)
		if m.FetchedAt != "" {
			h.raw(`<p class="fetched">Updated `)
			h.text(m.FetchedAt)
			h.raw(`</p>`)
		}
		if !m.Armed {
			h.raw(`<p class="fetched paused">Polling paused</p>`)
		}
		h.raw(`<table class="logs"><thead><tr><th>Commit</th><th>Time</th><th>Status</th><th>Risk</th><th>DLT tx</th></tr></thead><tbody>`)
		if len(m.Rows) == 0 {
			h.raw(`<tr class="empty"><td colspan="5">No commits analyzed yet.</td></tr>`)
		}
		for _, row := range m.Rows {
			h.raw(`<tr class="`)
			h.text(row.StatusClass)
			h.raw(`" data-commit-id="`)
			h.text(row.CommitID)
			h.raw(`"><td><code>`)
			h.text(row.ShortHash)
			h.raw(`</code></td><td>`)
			h.text(row.Timestamp)
			h.raw(`</td><td>`)
			h.text(row.Status)
			h.raw(`</td><td class="`)
			h.text(row.RiskClass)
			h.raw(`">`)
			h.text(row.RiskScore)
			h.raw(`</td><td><code>`)
			h.text(row.DLTTxHash)
			h.raw(`</code></td></tr>`)
		}
		h.raw(`</tbody></table></section></main>`)

		return h.err
	})
}
