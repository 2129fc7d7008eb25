package web

import (
	"strconv"
	"time"

	vm "github.com/ericfisherdev/scipguard/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/scipguard/internal/domain/model"
)

const (
	shortHashLength = 7
	timeLayout      = "2006-01-02 15:04:05 UTC"
)

// toLogRowViewModel converts a domain LogRecord to a table row.
func toLogRowViewModel(r model.LogRecord) vm.LogRowViewModel {
	return vm.LogRowViewModel{
		CommitID:    r.CommitID,
		ShortHash:   shortHash(r.CommitHash),
		Timestamp:   formatTimestamp(r.Timestamp),
		Status:      string(r.Status),
		StatusClass: statusClass(r.Status),
		RiskScore:   strconv.FormatFloat(r.RiskScore, 'f', -1, 64),
		RiskClass:   "risk-" + string(r.RiskLevel()),
		DLTTxHash:   r.DLTTxHash,
	}
}

// toDashboardViewModel assembles the dashboard from the session and the
// published snapshot. Rows keep server order.
func toDashboardViewModel(session model.Session, snap model.LogSnapshot, csrf string) vm.DashboardViewModel {
	rows := make([]vm.LogRowViewModel, 0, len(snap.Records))
	for _, r := range snap.Records {
		rows = append(rows, toLogRowViewModel(r))
	}

	d := vm.DashboardViewModel{
		Rows:       rows,
		ReportHTML: RenderMarkdown(BuildReport(snap.Records)),
		FetchedAt:  formatTimestamp(snap.FetchedAt),
		Armed:      snap.Armed,
		LastError:  snap.LastError,
		CSRFToken:  csrf,
	}
	if session.Identity != nil {
		d.Username = session.Identity.Username
		d.Email = session.Identity.Email
	}
	return d
}

func shortHash(hash string) string {
	if len(hash) > shortHashLength {
		return hash[:shortHashLength]
	}
	return hash
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func statusClass(s model.CommitStatus) string {
	switch s {
	case model.CommitStatusAccepted:
		return "status-accepted"
	case model.CommitStatusRejected:
		return "status-rejected"
	default:
		return "status-other"
	}
}
