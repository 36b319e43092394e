package ailink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/namelens/chatgate/internal/ailink/driver"
	"github.com/namelens/chatgate/internal/ailink/driver/openai"
	"github.com/namelens/chatgate/internal/ailink/retry"
	"github.com/namelens/chatgate/internal/core"
	"github.com/namelens/chatgate/internal/core/engine"
)

// ErrInvalidRequest is returned by Send before admission when the request
// cannot be sent.
var ErrInvalidRequest = errors.New("invalid chat request")

// SendRequest is the facade input.
type SendRequest struct {
	// Model overrides the configured model when set.
	Model    string    `json:"model,omitempty" yaml:"model,omitempty"`
	Messages []Message `json:"messages" yaml:"messages"`

	// APIKey is an explicit credential override for this call only.
	APIKey string `json:"-" yaml:"-"`
}

// SendResponse is the facade output.
type SendResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   *Usage `json:"usage,omitempty"`
	Demo    bool   `json:"demo,omitempty"`
}

// Service is the single entry point for sending chat requests. It owns the
// admission budget shared by all calls made through it.
type Service struct {
	cfg      Config
	provider *ResolvedProvider
	budget   engine.Admitter
	chain    *CredentialChain
	engine   *engine.Orchestrator
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	store      CredentialStore
	apiKey     string
	getenv     func(string) string
	httpClient *http.Client
	logger     *zap.Logger
	clock      func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	random     func() float64
	recorder   engine.Recorder
	onAttempt  func(retry.Attempt)
	driver     driver.Driver
	budget     engine.Admitter
}

// WithCredentialStore adds the primary credential store to the chain.
func WithCredentialStore(store CredentialStore) Option {
	return func(o *serviceOptions) { o.store = store }
}

// WithAPIKey sets an explicit credential that wins over every other source.
func WithAPIKey(key string) Option {
	return func(o *serviceOptions) { o.apiKey = key }
}

// WithGetenv replaces os.Getenv for the environment source (tests).
func WithGetenv(getenv func(string) string) Option {
	return func(o *serviceOptions) { o.getenv = getenv }
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *serviceOptions) { o.httpClient = client }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *serviceOptions) { o.logger = logger }
}

// WithClock overrides the time source of the budget and retry client.
func WithClock(clock func() time.Time) Option {
	return func(o *serviceOptions) { o.clock = clock }
}

// WithSleep overrides every cancellable wait (retry backoff, demo delay).
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *serviceOptions) { o.sleep = sleep }
}

// WithRand overrides the jitter source.
func WithRand(random func() float64) Option {
	return func(o *serviceOptions) { o.random = random }
}

func WithRecorder(recorder engine.Recorder) Option {
	return func(o *serviceOptions) { o.recorder = recorder }
}

// WithAttemptObserver is called for every upstream attempt.
func WithAttemptObserver(fn func(retry.Attempt)) Option {
	return func(o *serviceOptions) { o.onAttempt = fn }
}

// WithDriver replaces the upstream driver.
func WithDriver(d driver.Driver) Option {
	return func(o *serviceOptions) { o.driver = d }
}

// WithBudget replaces the in-process bucket, e.g. with an
// engine.SharedBucket backed by the store or redis.
func WithBudget(budget engine.Admitter) Option {
	return func(o *serviceOptions) { o.budget = budget }
}

// NewService builds the facade from cfg.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := NewRegistry(cfg)
	provider, err := registry.Resolve("")
	if err != nil {
		return nil, err
	}

	var budget engine.Admitter = o.budget
	if budget == nil {
		var bucketOpts []engine.BucketOption
		if o.clock != nil {
			bucketOpts = append(bucketOpts, engine.WithClock(o.clock))
		}
		budget = engine.NewTokenBucket(cfg.Admission.Capacity, cfg.Admission.RefillPerSecond, bucketOpts...)
	}

	sources := make([]CredentialSource, 0, 4)
	if strings.TrimSpace(o.apiKey) != "" {
		sources = append(sources, StaticSource{Key: NewSecret(o.apiKey)})
	}
	if o.store != nil {
		sources = append(sources, StoreSource{Store: o.store, Provider: provider.ProviderID})
	}
	sources = append(sources,
		ConfigSource{Registry: registry, ProviderID: provider.ProviderID},
		EnvSource{Keys: DefaultEnvKeys, Getenv: o.getenv},
	)
	chain := NewCredentialChain(sources...)
	chain.Logger = logger

	drv := o.driver
	if drv == nil {
		drv = newOpenAIDriver(cfg, provider, o, logger)
	}

	return &Service{
		cfg:      cfg,
		provider: provider,
		budget:   budget,
		chain:    chain,
		logger:   logger,
		engine: &engine.Orchestrator{
			Budget:      budget,
			Credentials: chain,
			Driver:      drv,
			DemoDelay:   cfg.Demo.Delay,
			Sleep:       o.sleep,
			Clock:       o.clock,
			Logger:      logger,
			Recorder:    o.recorder,
		},
	}, nil
}

func newOpenAIDriver(cfg Config, provider *ResolvedProvider, o serviceOptions, logger *zap.Logger) *openai.Client {
	client := openai.NewClient(provider.BaseURL)
	client.HTTPClient = o.httpClient
	client.Logger = logger
	client.OnAttempt = o.onAttempt
	client.Retry = &retry.Client{Sleep: o.sleep, Rand: o.random, Clock: o.clock}

	if referer := strings.TrimSpace(cfg.Identification.Referer); referer != "" {
		client.Referer = referer
	}
	if title := strings.TrimSpace(cfg.Identification.Title); title != "" {
		client.Title = title
	}
	if cfg.Retry != nil {
		client.Policy = retry.Policy{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.Retry.BaseDelay,
			MaxDelay:   cfg.Retry.MaxDelay,
			Retryable:  retry.RetryableStatus,
		}
	}
	return client
}

// Send runs one chat request. Failures are *Error values carrying a Kind,
// except ErrInvalidRequest for malformed input.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	if s == nil || s.engine == nil {
		return nil, errors.New("ailink service not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := validateMessages(req.Messages); err != nil {
		return nil, err
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = s.provider.Model
	}

	if s.cfg.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DefaultTimeout)
		defer cancel()
	}

	orchestrator := s.engine
	if key := strings.TrimSpace(req.APIKey); key != "" {
		orchestrator = orchestrator.WithCredentials(s.chain.Prepend(StaticSource{Key: NewSecret(key)}))
	}

	resp, err := orchestrator.Complete(ctx, core.ChatRequest{Model: model, Messages: req.Messages})
	if err != nil {
		return nil, err
	}

	return &SendResponse{Content: resp.Content, Model: model, Usage: resp.Usage, Demo: resp.Demo}, nil
}

// Budget returns the current admission state. It fails only when a shared
// backend cannot be read.
func (s *Service) Budget(ctx context.Context) (core.RateBudget, error) {
	if s == nil || s.budget == nil {
		return core.RateBudget{}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return s.budget.State(ctx)
}

// ProviderID returns the resolved provider instance id.
func (s *Service) ProviderID() string {
	if s == nil || s.provider == nil {
		return ""
	}
	return s.provider.ProviderID
}

// Model returns the default model for requests without an override.
func (s *Service) Model() string {
	if s == nil || s.provider == nil {
		return ""
	}
	return s.provider.Model
}

// CredentialSource reports which chain link currently supplies a credential,
// or "" when Send would take the demo path.
func (s *Service) CredentialSource(ctx context.Context) (string, error) {
	_, source, err := s.chain.Lookup(ctx)
	return source, err
}

func validateMessages(messages []Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: messages are required", ErrInvalidRequest)
	}
	for i, msg := range messages {
		if !msg.Role.Valid() {
			return fmt.Errorf("%w: message %d has unsupported role %q", ErrInvalidRequest, i, msg.Role)
		}
	}
	return nil
}
