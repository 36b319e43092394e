package engine

import (
	"strings"
	"time"

	"github.com/namelens/chatgate/internal/core"
)

// DefaultDemoDelay approximates upstream latency on the demo path.
const DefaultDemoDelay = 600 * time.Millisecond

const (
	demoCodeReply = "Demo mode: no API key is configured, so here is a canned example.\n\n" +
		"```go\n" +
		"package main\n\n" +
		"import \"fmt\"\n\n" +
		"func main() {\n" +
		"\tfmt.Println(\"hello from chatgate\")\n" +
		"}\n" +
		"```\n\n" +
		"Configure an API key to get real answers."

	demoTextReply = "Demo mode: no API key is configured, so this is a placeholder reply. " +
		"Configure an API key to talk to a real model."
)

// DemoReply synthesizes a deterministic reply from the last user message.
// Messages mentioning "code" or containing a fenced block get a code sample.
func DemoReply(req core.ChatRequest) string {
	last, _ := req.LastUserMessage()
	if strings.Contains(strings.ToLower(last), "code") || strings.Contains(last, "```") {
		return demoCodeReply
	}
	return demoTextReply
}
