package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/ericfisherdev/scipguard/internal/application"
	"github.com/ericfisherdev/scipguard/internal/domain/model"
)

// Output handles formatting output based on the configured format.
type Output struct {
	format string
	out    io.Writer
	errOut io.Writer
}

// NewOutput creates a new Output formatter. format is "text" or "json".
func NewOutput(format string, out, errOut io.Writer) *Output {
	return &Output{format: format, out: out, errOut: errOut}
}

// Print outputs data in the configured format.
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
		return
	}

	switch v := data.(type) {
	case SessionView:
		o.printSession(v)
	case LogsView:
		o.printLogs(v)
	case AnalysisView:
		o.printAnalysis(v)
	case HealthView:
		o.printHealth(v)
	default:
		o.printJSON(data)
	}
}

// PrintError outputs an error to the error stream.
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]any{
			"error": map[string]string{"message": err.Error()},
		})
		fmt.Fprintln(o.errOut, string(data))
		return
	}
	fmt.Fprintf(o.errOut, "Error: %s\n", err)
}

// PrintMessage outputs a simple message.
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.out, string(data))
		return
	}
	fmt.Fprintln(o.out, msg)
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

// SessionView is the printable session.
type SessionView struct {
	State         string `json:"state"`
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
	Username      string `json:"username,omitempty"`
}

// LogRecordView is one printable audit record.
type LogRecordView struct {
	CommitID   string  `json:"commit_id"`
	CommitHash string  `json:"commit_hash"`
	Timestamp  string  `json:"timestamp"`
	Status     string  `json:"status"`
	RiskScore  float64 `json:"risk_score"`
	RiskLevel  string  `json:"risk_level"`
	DLTTxHash  string  `json:"dlt_tx_hash"`
}

// LogsView is the printable log snapshot.
type LogsView struct {
	Logs      []LogRecordView `json:"logs"`
	FetchedAt string          `json:"fetched_at,omitempty"`
	LastError string          `json:"last_error,omitempty"`
}

// AnalysisView is the printable result of a submission.
type AnalysisView struct {
	Message string        `json:"message"`
	Commit  LogRecordView `json:"commit"`
}

// HealthView is the printable health report.
type HealthView struct {
	Server      string `json:"server"`
	ServerError string `json:"server_error,omitempty"`
	Session     string `json:"session"`
	CheckedAt   string `json:"checked_at"`
}

func toSessionView(s model.Session) SessionView {
	v := SessionView{State: s.State.String(), Authenticated: s.Authenticated()}
	if s.Identity != nil {
		v.UserID = s.Identity.UserID
		v.Email = s.Identity.Email
		v.Username = s.Identity.Username
	}
	return v
}

func toLogRecordView(r model.LogRecord) LogRecordView {
	return LogRecordView{
		CommitID:   r.CommitID,
		CommitHash: r.CommitHash,
		Timestamp:  formatTime(r.Timestamp),
		Status:     string(r.Status),
		RiskScore:  r.RiskScore,
		RiskLevel:  string(r.RiskLevel()),
		DLTTxHash:  r.DLTTxHash,
	}
}

func toLogsView(snap model.LogSnapshot) LogsView {
	logs := make([]LogRecordView, 0, len(snap.Records))
	for _, r := range snap.Records {
		logs = append(logs, toLogRecordView(r))
	}
	return LogsView{Logs: logs, FetchedAt: formatTime(snap.FetchedAt), LastError: snap.LastError}
}

func toAnalysisView(res model.AnalysisResult) AnalysisView {
	return AnalysisView{Message: res.Message, Commit: toLogRecordView(res.Commit)}
}

func toHealthView(r application.HealthReport) HealthView {
	return HealthView{
		Server:      string(r.Server),
		ServerError: r.ServerError,
		Session:     r.Session.String(),
		CheckedAt:   formatTime(r.CheckedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (o *Output) printSession(s SessionView) {
	if !s.Authenticated {
		fmt.Fprintf(o.out, "Not logged in (%s)\n", s.State)
		return
	}
	fmt.Fprintf(o.out, "User: %s <%s>\n", s.Username, s.Email)
	fmt.Fprintf(o.out, "ID: %s\n", s.UserID)
}

func (o *Output) printLogs(l LogsView) {
	if l.LastError != "" {
		fmt.Fprintf(o.errOut, "Warning: last sync failed: %s\n", l.LastError)
	}
	if len(l.Logs) == 0 {
		fmt.Fprintln(o.out, "No commits analyzed yet.")
		return
	}

	tw := tabwriter.NewWriter(o.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMIT\tTIME\tSTATUS\tRISK\tDLT TX")
	for _, r := range l.Logs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s (%s)\t%s\n",
			shortHash(r.CommitHash), r.Timestamp, r.Status,
			strconv.FormatFloat(r.RiskScore, 'f', -1, 64), r.RiskLevel, r.DLTTxHash)
	}
	_ = tw.Flush()
}

func (o *Output) printAnalysis(a AnalysisView) {
	fmt.Fprintln(o.out, a.Message)
	fmt.Fprintf(o.out, "Commit: %s (%s)\n", a.Commit.CommitID, shortHash(a.Commit.CommitHash))
	fmt.Fprintf(o.out, "Status: %s\n", a.Commit.Status)
	fmt.Fprintf(o.out, "Risk: %s (%s)\n", strconv.FormatFloat(a.Commit.RiskScore, 'f', -1, 64), a.Commit.RiskLevel)
}

func (o *Output) printHealth(h HealthView) {
	if h.ServerError != "" {
		fmt.Fprintf(o.out, "Server: %s (%s)\n", h.Server, h.ServerError)
	} else {
		fmt.Fprintf(o.out, "Server: %s\n", h.Server)
	}
	fmt.Fprintf(o.out, "Session: %s\n", h.Session)
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
