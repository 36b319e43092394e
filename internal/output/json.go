package output

import (
	"encoding/json"

	"github.com/namelens/chatgate/internal/ailink"
	"github.com/namelens/chatgate/internal/core/store"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

type credentialJSON struct {
	Provider  string `json:"provider"`
	Label     string `json:"label,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

func (f *JSONFormatter) FormatReply(resp *ailink.SendResponse) (string, error) {
	if resp == nil {
		return "", nil
	}
	return f.marshal(resp)
}

func (f *JSONFormatter) FormatBudget(budget Budget) (string, error) {
	return f.marshal(budget)
}

// FormatCredentials never includes key material; entries carry none.
func (f *JSONFormatter) FormatCredentials(entries []store.CredentialEntry) (string, error) {
	out := make([]credentialJSON, 0, len(entries))
	for _, entry := range entries {
		out = append(out, credentialJSON{
			Provider:  entry.Provider,
			Label:     entry.Label,
			UpdatedAt: timestamp(entry.UpdatedAt),
		})
	}
	return f.marshal(out)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
