package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/namelens/chatgate/internal/ailink/driver"
	"github.com/namelens/chatgate/internal/ailink/retry"
	"github.com/namelens/chatgate/internal/core"
)

// CredentialResolver looks up the credential used for upstream calls.
type CredentialResolver interface {
	// Resolve returns an empty string and a nil error when no credential is
	// available.
	Resolve(ctx context.Context) (string, error)
}

// Recorder receives per-request outcomes.
type Recorder interface {
	RequestCompleted(outcome string, elapsed time.Duration)
	AdmissionDenied()
}

// Orchestrator turns a ChatRequest into exactly one ChatResponse or one
// *core.Error. Each call runs admission, credential resolution, then either
// the demo path or the upstream driver.
type Orchestrator struct {
	// Budget admits each call. Nil admits everything.
	Budget      Admitter
	Credentials CredentialResolver
	Driver      driver.Driver

	// DemoDelay is the simulated latency of the demo path. Zero means
	// DefaultDemoDelay.
	DemoDelay time.Duration
	Sleep     func(ctx context.Context, d time.Duration) error
	Clock     func() time.Time

	Logger   *zap.Logger
	Recorder Recorder
}

// Complete runs one orchestration. Context cancellation at any point yields
// a core.Error of kind KindCancelled.
func (o *Orchestrator) Complete(ctx context.Context, req core.ChatRequest) (*core.ChatResponse, error) {
	if o == nil {
		return nil, fmt.Errorf("orchestrator not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	requestID := core.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := o.logger().With(zap.String("request_id", requestID), zap.String("model", req.Model))
	started := o.now()

	resp, err := o.complete(ctx, req, requestID, logger)

	elapsed := o.now().Sub(started)
	outcome := outcomeOf(resp, err)
	if o.Recorder != nil {
		o.Recorder.RequestCompleted(outcome, elapsed)
	}
	if err != nil {
		logger.Debug("chat request failed", zap.String("outcome", outcome), zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		logger.Debug("chat request completed", zap.String("outcome", outcome), zap.Duration("elapsed", elapsed))
	}
	return resp, err
}

// WithCredentials returns a copy of o that resolves credentials through r.
// The copy shares the admission budget.
func (o *Orchestrator) WithCredentials(r CredentialResolver) *Orchestrator {
	clone := *o
	clone.Credentials = r
	return &clone
}

func (o *Orchestrator) complete(ctx context.Context, req core.ChatRequest, requestID string, logger *zap.Logger) (*core.ChatResponse, error) {
	if err := o.admit(ctx, logger); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, core.Cancelled(err)
	}

	credential, err := o.resolveCredential(ctx)
	if err != nil {
		return nil, err
	}

	if credential == "" {
		logger.Debug("no credential configured, using demo reply")
		if err := o.sleep(ctx, o.demoDelay()); err != nil {
			return nil, core.Cancelled(err)
		}
		return &core.ChatResponse{Content: DemoReply(req), Demo: true}, nil
	}

	if o.Driver == nil {
		return nil, fmt.Errorf("driver not configured")
	}

	resp, err := o.Driver.Complete(ctx, &driver.Request{
		Model:      req.Model,
		Messages:   req.Messages,
		Credential: credential,
		RequestID:  requestID,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && core.KindOf(err) == core.KindUnknown {
			return nil, core.Cancelled(ctxErr)
		}
		return nil, err
	}

	return &core.ChatResponse{Content: resp.Content, Usage: resp.Usage}, nil
}

// admit fails with RateLimited on denial. An unreachable budget backend is
// reported as Offline rather than admitting unmetered traffic.
func (o *Orchestrator) admit(ctx context.Context, logger *zap.Logger) error {
	if o.Budget == nil {
		return nil
	}
	wait, ok, err := o.Budget.Admit(ctx, 1)
	if err != nil {
		if core.IsContextError(err) {
			return core.Cancelled(err)
		}
		logger.Warn("admission backend failed", zap.Error(err))
		return core.Offline(fmt.Errorf("admission: %w", err))
	}
	if !ok {
		if o.Recorder != nil {
			o.Recorder.AdmissionDenied()
		}
		return core.RateLimited(wait)
	}
	return nil
}

func (o *Orchestrator) resolveCredential(ctx context.Context) (string, error) {
	if o.Credentials == nil {
		return "", nil
	}
	credential, err := o.Credentials.Resolve(ctx)
	if err != nil {
		if core.IsContextError(err) {
			return "", core.Cancelled(err)
		}
		return "", fmt.Errorf("resolve credential: %w", err)
	}
	return credential, nil
}

func (o *Orchestrator) demoDelay() time.Duration {
	if o.DemoDelay > 0 {
		return o.DemoDelay
	}
	return DefaultDemoDelay
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if o.Sleep != nil {
		return o.Sleep(ctx, d)
	}
	return retry.Sleep(ctx, d)
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}

func outcomeOf(resp *core.ChatResponse, err error) string {
	switch {
	case err != nil:
		kind := core.KindOf(err)
		if kind == core.KindUnknown {
			return "error"
		}
		return kind.String()
	case resp != nil && resp.Demo:
		return "demo"
	default:
		return "success"
	}
}
