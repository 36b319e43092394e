package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namelens/chatgate/internal/core"
)

type describedService struct {
	*fakeChatService
}

func (describedService) ProviderID() string { return "openai-main" }
func (describedService) Model() string      { return "gpt-4o-mini" }

func getVersion(t *testing.T, service ChatService) VersionResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	NewVersionHandler(service)(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp VersionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestVersionHandlerIncludesBuildMetadata(t *testing.T) {
	SetVersionInfo("1.2.3", "abcd123", "2025-11-07T12:00:00Z")
	t.Cleanup(func() { SetVersionInfo("dev", "unknown", "unknown") })

	resp := getVersion(t, nil)
	assert.Equal(t, "chatgate", resp.App.Name)
	assert.Equal(t, "1.2.3", resp.App.Version)
	assert.Equal(t, "abcd123", resp.App.Commit)
	assert.NotEmpty(t, resp.Dependencies.Gofulmen)
	assert.NotEmpty(t, resp.Dependencies.Crucible)
	assert.Nil(t, resp.Upstream)
}

func TestVersionHandlerDescribesUpstream(t *testing.T) {
	svc := describedService{&fakeChatService{budget: core.RateBudget{Capacity: 10, RefillPerSecond: 0.5, Tokens: 3}}}

	resp := getVersion(t, svc)
	require.NotNil(t, resp.Upstream)
	assert.Equal(t, "openai-main", resp.Upstream.Provider)
	assert.Equal(t, "gpt-4o-mini", resp.Upstream.Model)
	assert.Equal(t, 10.0, resp.Upstream.Capacity)
	assert.Equal(t, 0.5, resp.Upstream.RefillPerSecond)
}
