// Package output renders chat replies, admission budgets and stored
// credentials for the CLI.
package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/namelens/chatgate/internal/ailink"
	"github.com/namelens/chatgate/internal/core"
	"github.com/namelens/chatgate/internal/core/store"
)

// Format represents an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Budget is a named admission budget as shown by the CLI.
type Budget struct {
	Name   string          `json:"name"`
	Budget core.RateBudget `json:"budget"`
	// Persisted is false when the state shown is a fresh default.
	Persisted bool `json:"persisted"`
}

// Formatter renders command results.
type Formatter interface {
	FormatReply(resp *ailink.SendResponse) (string, error)
	FormatBudget(budget Budget) (string, error)
	FormatCredentials(entries []store.CredentialEntry) (string, error)
}

// ParseFormat validates and normalizes a format string. Empty selects
// fallback.
func ParseFormat(value string, fallback ...Format) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "":
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return FormatTable, nil
	case string(FormatText), "plain":
		return FormatText, nil
	case string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	case FormatText:
		return &TextFormatter{}
	default:
		return &TableFormatter{}
	}
}

func usageSummary(usage *core.Usage) string {
	if usage == nil {
		return "-"
	}
	return fmt.Sprintf("%d prompt + %d completion = %d", usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
}

func availability(budget core.RateBudget) string {
	if budget.Tokens >= 1 {
		return "available"
	}
	if budget.RefillPerSecond <= 0 {
		return "exhausted"
	}
	wait := time.Duration((1 - budget.Tokens) / budget.RefillPerSecond * float64(time.Second))
	return fmt.Sprintf("next token in %s", wait.Round(time.Millisecond))
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
