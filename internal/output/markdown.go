package output

import (
	"fmt"
	"strings"

	"github.com/namelens/chatgate/internal/ailink"
	"github.com/namelens/chatgate/internal/core/store"
)

// MarkdownFormatter renders results as Markdown.
type MarkdownFormatter struct{}

// FormatReply emits the reply body verbatim under a heading, since replies
// are usually Markdown already.
func (f *MarkdownFormatter) FormatReply(resp *ailink.SendResponse) (string, error) {
	if resp == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Reply (%s)\n\n", escapeMarkdownCell(resp.Model)))
	if resp.Demo {
		sb.WriteString("> Demo reply: no credential configured.\n\n")
	}
	sb.WriteString(strings.TrimSpace(resp.Content))
	sb.WriteString("\n")
	if resp.Usage != nil {
		sb.WriteString(fmt.Sprintf("\n_Tokens: %s_\n", usageSummary(resp.Usage)))
	}
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatBudget(budget Budget) (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Budget %s\n\n", escapeMarkdownCell(budget.Name)))
	sb.WriteString("| Capacity | Refill/s | Tokens | Status | Last refill |\n")
	sb.WriteString("|----------|----------|--------|--------|-------------|\n")
	sb.WriteString(fmt.Sprintf("| %g | %g | %.2f | %s | %s |\n",
		budget.Budget.Capacity,
		budget.Budget.RefillPerSecond,
		budget.Budget.Tokens,
		escapeMarkdownCell(availability(budget.Budget)),
		timestamp(budget.Budget.LastRefill),
	))
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatCredentials(entries []store.CredentialEntry) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Stored credentials\n\n")
	if len(entries) == 0 {
		sb.WriteString("_none_\n")
		return sb.String(), nil
	}
	sb.WriteString("| Provider | Label | Updated |\n")
	sb.WriteString("|----------|-------|---------|\n")
	for _, entry := range entries {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n",
			escapeMarkdownCell(entry.Provider),
			escapeMarkdownCell(entry.Label),
			timestamp(entry.UpdatedAt),
		))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.ReplaceAll(value, "|", "\\|")
}
