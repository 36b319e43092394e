package output

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"

	"github.com/namelens/chatgate/internal/ailink"
	"github.com/namelens/chatgate/internal/core/store"
)

// TextFormatter prints the reply body alone, suitable for piping. Budgets
// and credential lists are boxed.
type TextFormatter struct{}

func (f *TextFormatter) FormatReply(resp *ailink.SendResponse) (string, error) {
	if resp == nil {
		return "", nil
	}
	return strings.TrimRight(resp.Content, "\n"), nil
}

func (f *TextFormatter) FormatBudget(budget Budget) (string, error) {
	lines := []string{
		fmt.Sprintf("Budget %s", budget.Name),
		"",
		fmt.Sprintf("capacity: %g", budget.Budget.Capacity),
		fmt.Sprintf("refill:   %g/s", budget.Budget.RefillPerSecond),
		fmt.Sprintf("tokens:   %.2f (%s)", budget.Budget.Tokens, availability(budget.Budget)),
	}
	return ascii.DrawBox(strings.Join(lines, "\n"), 0), nil
}

func (f *TextFormatter) FormatCredentials(entries []store.CredentialEntry) (string, error) {
	lines := []string{"Stored credentials", ""}
	if len(entries) == 0 {
		lines = append(lines, "(none)")
	}
	for _, entry := range entries {
		line := entry.Provider
		if entry.Label != "" {
			line += " (" + entry.Label + ")"
		}
		lines = append(lines, fmt.Sprintf("%s  updated %s", line, timestamp(entry.UpdatedAt)))
	}
	return ascii.DrawBox(strings.Join(lines, "\n"), 0), nil
}
