package ailink

import "github.com/namelens/chatgate/internal/core"

// Callers branch on these without importing the request path internals.
type (
	Error   = core.Error
	Kind    = core.Kind
	Message = core.ChatMessage
	Role    = core.Role
	Usage   = core.Usage
)

const (
	KindUnknown       = core.KindUnknown
	KindCancelled     = core.KindCancelled
	KindRateLimited   = core.KindRateLimited
	KindHTTPFailure   = core.KindHTTPFailure
	KindEmptyResponse = core.KindEmptyResponse
	KindOffline       = core.KindOffline
	KindTimeout       = core.KindTimeout
	KindCircuitOpen   = core.KindCircuitOpen

	RoleUser      = core.RoleUser
	RoleAssistant = core.RoleAssistant
	RoleSystem    = core.RoleSystem
)

// KindOf returns the failure kind carried by err.
func KindOf(err error) Kind {
	return core.KindOf(err)
}
