package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/namelens/chatgate/internal/ailink"
	"github.com/namelens/chatgate/internal/core/store"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

func (f *TableFormatter) FormatReply(resp *ailink.SendResponse) (string, error) {
	if resp == nil {
		return "", nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRow(table.Row{"Model", resp.Model})
	t.AppendRow(table.Row{"Demo", fmt.Sprintf("%t", resp.Demo)})
	t.AppendRow(table.Row{"Tokens", usageSummary(resp.Usage)})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Reply", resp.Content})
	return t.Render(), nil
}

func (f *TableFormatter) FormatBudget(budget Budget) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Budget", "Capacity", "Refill/s", "Tokens", "Status", "Last refill"})
	t.AppendRow(table.Row{
		budget.Name,
		fmt.Sprintf("%g", budget.Budget.Capacity),
		fmt.Sprintf("%g", budget.Budget.RefillPerSecond),
		fmt.Sprintf("%.2f", budget.Budget.Tokens),
		availability(budget.Budget),
		timestamp(budget.Budget.LastRefill),
	})
	if !budget.Persisted {
		t.AppendFooter(table.Row{"", "", "", "", "not persisted", ""})
	}
	return t.Render(), nil
}

func (f *TableFormatter) FormatCredentials(entries []store.CredentialEntry) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Provider", "Label", "Updated"})
	for _, entry := range entries {
		t.AppendRow(table.Row{entry.Provider, entry.Label, timestamp(entry.UpdatedAt)})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d stored", len(entries))})
	return t.Render(), nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}
