package output

import (
	"video2article/internal/domain"
)

// Diagnostics renders the environment report as a table.
func (p *Printer) Diagnostics(report domain.DiagnosticReport) error {
	table := NewTable(p.out, []string{"", "Check", "ID", "Message", "Hint"})
	for _, item := range report.Items {
		hint := item.Hint
		if item.Fixable && item.Status == domain.DiagnosticStatusFail {
			hint = "run: video2article fix " + item.ID
		}
		table.AddRow(p.StatusBadge(string(item.Status)), item.Name, item.ID, item.Message, p.Dim(hint))
	}
	return table.Render()
}
