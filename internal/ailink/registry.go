package ailink

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// implicitProviderID names the provider used when no instance is configured
// and credentials come from the store or the environment.
const implicitProviderID = "openai"

// Registry resolves the provider instance, model and config credentials for
// chat requests.
type Registry struct {
	cfg Config

	mu sync.Mutex
	rr map[string]int
}

// ResolvedProvider is the provider instance a Service talks to.
type ResolvedProvider struct {
	ProviderID string
	Provider   ProviderInstanceConfig
	Model      string
	BaseURL    string
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg}
}

// Resolve picks the provider instance and model. modelOverride wins over
// configured models.
func (r *Registry) Resolve(modelOverride string) (*ResolvedProvider, error) {
	providerID, providerCfg, err := r.resolveProvider()
	if err != nil {
		return nil, err
	}

	model, err := resolveModel(providerCfg, r.cfg.Model, modelOverride)
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimSpace(providerCfg.BaseURL)
	if baseURL == "" {
		baseURL = strings.TrimSpace(r.cfg.BaseURL)
	}

	return &ResolvedProvider{
		ProviderID: providerID,
		Provider:   providerCfg,
		Model:      model,
		BaseURL:    baseURL,
	}, nil
}

// ConfigCredential selects a configured credential for providerID using the
// instance's selection policy. It returns an empty string when the instance
// has no usable key.
func (r *Registry) ConfigCredential(providerID string) string {
	if r == nil {
		return ""
	}
	providerCfg, ok := r.cfg.Providers[providerID]
	if !ok || !providerCfg.Enabled {
		return ""
	}

	cred, err := selectCredential(providerCfg, func(group string, n int) int {
		return r.rrIndex(providerID+":"+group, n)
	})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cred.APIKey)
}

func (r *Registry) resolveProvider() (string, ProviderInstanceConfig, error) {
	if r == nil {
		return "", ProviderInstanceConfig{}, fmt.Errorf("ailink registry not configured")
	}

	if id := strings.TrimSpace(r.cfg.DefaultProvider); id != "" {
		providerCfg, ok := r.cfg.Providers[id]
		if !ok {
			return "", ProviderInstanceConfig{}, fmt.Errorf("default provider %q not configured", id)
		}
		if !providerCfg.Enabled {
			return "", ProviderInstanceConfig{}, fmt.Errorf("default provider %q is disabled", id)
		}
		return id, providerCfg, nil
	}

	enabled := make([]string, 0, len(r.cfg.Providers))
	for providerID, providerCfg := range r.cfg.Providers {
		if providerCfg.Enabled {
			enabled = append(enabled, providerID)
		}
	}
	slices.Sort(enabled)

	switch len(enabled) {
	case 0:
		return implicitProviderID, ProviderInstanceConfig{Enabled: true, AIProvider: "openai"}, nil
	case 1:
		return enabled[0], r.cfg.Providers[enabled[0]], nil
	default:
		return "", ProviderInstanceConfig{}, fmt.Errorf("multiple providers enabled (%s); set ailink.default_provider", strings.Join(enabled, ", "))
	}
}

// selectCredential returns the DefaultCredential label when it names a usable
// credential, otherwise one from the highest-priority group: the first under
// "priority", rotating under "round_robin".
func selectCredential(cfg ProviderInstanceConfig, next func(group string, n int) int) (CredentialConfig, error) {
	usable := slices.DeleteFunc(slices.Clone(cfg.Credentials), func(c CredentialConfig) bool {
		disabled := !c.Enabled && strings.TrimSpace(c.Label) != ""
		return disabled || strings.TrimSpace(c.APIKey) == ""
	})
	if len(usable) == 0 {
		return CredentialConfig{}, errors.New("no usable credentials configured")
	}

	if label := strings.TrimSpace(cfg.DefaultCredential); label != "" {
		i := slices.IndexFunc(usable, func(c CredentialConfig) bool {
			return strings.EqualFold(strings.TrimSpace(c.Label), label)
		})
		if i >= 0 {
			return usable[i], nil
		}
	}

	top := slices.MaxFunc(usable, func(a, b CredentialConfig) int {
		return cmp.Compare(a.Priority, b.Priority)
	}).Priority
	group := slices.DeleteFunc(usable, func(c CredentialConfig) bool { return c.Priority != top })

	if strings.EqualFold(strings.TrimSpace(cfg.SelectionPolicy), "round_robin") && next != nil {
		return group[next(strconv.Itoa(top), len(group))], nil
	}
	return group[0], nil
}

func resolveModel(providerCfg ProviderInstanceConfig, fallback, override string) (string, error) {
	if model := strings.TrimSpace(override); model != "" {
		return model, nil
	}
	if providerCfg.Models != nil {
		if model := strings.TrimSpace(providerCfg.Models["default"]); model != "" {
			return model, nil
		}
	}
	if model := strings.TrimSpace(fallback); model != "" {
		return model, nil
	}
	return "", fmt.Errorf("model not configured")
}

// rrIndex returns the next rotation slot for key in [0, n).
func (r *Registry) rrIndex(key string, n int) int {
	if r == nil || n <= 1 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rr == nil {
		r.rr = map[string]int{}
	}
	idx := r.rr[key] % n
	r.rr[key]++
	return idx
}
