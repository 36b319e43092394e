package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/namelens/chatgate/internal/ailink"
)

// exitProcess is replaced in tests.
var exitProcess = os.Exit

// ExitCodeFor maps a command error onto a foundry exit code.
func ExitCodeFor(err error) foundry.ExitCode {
	switch {
	case err == nil:
		return foundry.ExitCode(0)
	case stderrors.Is(err, errConfig):
		return foundry.ExitConfigInvalid
	case stderrors.Is(err, fs.ErrNotExist):
		return foundry.ExitFileNotFound
	}

	switch ailink.KindOf(err) {
	case ailink.KindHTTPFailure, ailink.KindEmptyResponse, ailink.KindOffline,
		ailink.KindTimeout, ailink.KindCircuitOpen:
		return foundry.ExitExternalServiceUnavailable
	}
	return foundry.ExitFailure
}

// Exit reports err on stderr with its foundry exit code and terminates.
func Exit(err error) {
	code := ExitCodeFor(err)
	reportFailure(os.Stderr, code, err)
	exitProcess(int(code))
}

func reportFailure(w io.Writer, code foundry.ExitCode, err error) {
	if envelope, ok := err.(*errors.ErrorEnvelope); ok {
		_, _ = fmt.Fprintf(w, "Error [%s]: %s\n", envelope.Code, envelope.Message)
	} else {
		_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	}

	if hint := failureHint(err); hint != "" {
		_, _ = fmt.Fprintf(w, "Hint: %s\n", hint)
	}

	if info, ok := foundry.GetExitCodeInfo(code); ok {
		_, _ = fmt.Fprintf(w, "Exit code: %d (%s)\n", info.Code, info.Name)
	}
}

func failureHint(err error) string {
	var chatErr *ailink.Error
	if stderrors.As(err, &chatErr) {
		switch chatErr.Kind {
		case ailink.KindRateLimited:
			wait := chatErr.RetryAfter.Round(time.Millisecond)
			return fmt.Sprintf("local request budget exhausted; next token in %s (see 'chatgate budget show')", wait)
		case ailink.KindHTTPFailure:
			if chatErr.Status == 401 || chatErr.Status == 403 {
				return "the upstream rejected the credential; check 'chatgate credentials which'"
			}
		}
	}
	switch {
	case stderrors.Is(err, errConfig):
		return "run 'chatgate doctor' to locate and validate the config file"
	case stderrors.Is(err, ailink.ErrInvalidRequest):
		return "messages must be non-empty and use the roles user, assistant or system"
	}
	return ""
}
