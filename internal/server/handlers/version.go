package handlers

import (
	"net/http"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
)

// Build metadata, set from main through SetVersionInfo.
var (
	AppName      = "chatgate"
	AppVersion   = "dev"
	AppCommit    = "unknown"
	AppBuildDate = "unknown"
)

// SetVersionInfo records build metadata for /version.
func SetVersionInfo(version, commit, buildDate string) {
	AppVersion = version
	AppCommit = commit
	AppBuildDate = buildDate
}

// VersionResponse is the /version body.
type VersionResponse struct {
	App          AppInfo     `json:"app"`
	Dependencies DepInfo     `json:"dependencies"`
	Runtime      RuntimeInfo `json:"runtime"`

	// Upstream is set when the server fronts a chat service.
	Upstream *UpstreamInfo `json:"upstream,omitempty"`
}

type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// UpstreamInfo identifies where chat requests go and the admission budget
// sizing. It never includes credentials.
type UpstreamInfo struct {
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	Capacity        float64 `json:"budget_capacity"`
	RefillPerSecond float64 `json:"budget_refill_per_second"`
}

// upstreamDescriber is implemented by ailink.Service.
type upstreamDescriber interface {
	ProviderID() string
	Model() string
}

// CurrentVersion assembles the response; the CLI version command prints the
// same structure.
func CurrentVersion() VersionResponse {
	deps := crucible.GetVersion()
	return VersionResponse{
		App: AppInfo{
			Name:      AppName,
			Version:   AppVersion,
			Commit:    AppCommit,
			BuildDate: AppBuildDate,
			GoVersion: runtime.Version(),
		},
		Dependencies: DepInfo{
			Gofulmen: deps.Gofulmen,
			Crucible: deps.Crucible,
		},
		Runtime: RuntimeInfo{
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
		},
	}
}

// NewVersionHandler serves GET /version, describing service's upstream when
// it can.
func NewVersionHandler(service ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := CurrentVersion()
		if service != nil {
			info := &UpstreamInfo{}
			if budget, err := service.Budget(r.Context()); err == nil {
				info.Capacity = budget.Capacity
				info.RefillPerSecond = budget.RefillPerSecond
			}
			if d, ok := service.(upstreamDescriber); ok {
				info.Provider = d.ProviderID()
				info.Model = d.Model()
			}
			resp.Upstream = info
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
