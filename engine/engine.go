package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/cache"
	"github.com/CavellTopDev/pitchey-app-sub015/cron"
	"github.com/CavellTopDev/pitchey-app-sub015/docstore"
	"github.com/CavellTopDev/pitchey-app-sub015/event"
	"github.com/CavellTopDev/pitchey-app-sub015/ext"
	"github.com/CavellTopDev/pitchey-app-sub015/id"
	"github.com/CavellTopDev/pitchey-app-sub015/investment"
	mw "github.com/CavellTopDev/pitchey-app-sub015/middleware"
	"github.com/CavellTopDev/pitchey-app-sub015/nda"
	"github.com/CavellTopDev/pitchey-app-sub015/notify"
	"github.com/CavellTopDev/pitchey-app-sub015/observability"
	"github.com/CavellTopDev/pitchey-app-sub015/production"
	"github.com/CavellTopDev/pitchey-app-sub015/provider"
	"github.com/CavellTopDev/pitchey-app-sub015/store"
	"github.com/CavellTopDev/pitchey-app-sub015/stream"
	"github.com/CavellTopDev/pitchey-app-sub015/workflow"
)

// SweepEntry is the scheduler entry that wakes due runs.
const SweepEntry = "wake-due-instances"

const instrumentationName = "github.com/CavellTopDev/pitchey-app-sub015"

// Engine owns the workflow runtime and its collaborators.
type Engine struct {
	store  store.Store
	config dealflow.Config
	logger *slog.Logger
	clock  clockwork.Clock
	owner  string

	extensions   *ext.Registry
	interceptors []workflow.Interceptor
	registry     *workflow.Registry
	runner       *workflow.Runner
	bus          *event.Bus
	scheduler    *cron.Scheduler
	broker       *stream.Broker

	documents docstore.Store
	notifier  notify.Sender
	signer    provider.Signer
	payments  provider.Payments
	cache     cache.StatusCache
	retry     *workflow.RetryPolicy

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg dealflow.Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the clock of the runtime and the scheduler.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithOwner sets the lease owner name of this process.
func WithOwner(owner string) Option {
	return func(e *Engine) { e.owner = owner }
}

// WithExtension registers a lifecycle extension.
func WithExtension(x ext.Extension) Option {
	return func(e *Engine) { e.extensions.Register(x) }
}

// WithInterceptor appends a step interceptor after the defaults.
func WithInterceptor(ic workflow.Interceptor) Option {
	return func(e *Engine) { e.interceptors = append(e.interceptors, ic) }
}

// WithDocuments sets the document store. Defaults to docstore.Memory, or
// a file system store when Documents.Root is configured.
func WithDocuments(d docstore.Store) Option {
	return func(e *Engine) { e.documents = d }
}

// WithNotifier sets the notification sink. Defaults to a LogSender.
func WithNotifier(n notify.Sender) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithSigner sets the e-signature provider. Defaults to the sandbox.
func WithSigner(s provider.Signer) Option {
	return func(e *Engine) { e.signer = s }
}

// WithPayments sets the payment provider. Defaults to the sandbox.
func WithPayments(p provider.Payments) Option {
	return func(e *Engine) { e.payments = p }
}

// WithCache sets the status cache. Defaults to an in-process cache.
func WithCache(c cache.StatusCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithRetry sets the retry policy of collaborator calls.
func WithRetry(p workflow.RetryPolicy) Option {
	return func(e *Engine) { e.retry = &p }
}

// WithTracerProvider sets the provider used by the tracing interceptor.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets the provider used by the metrics interceptor and
// the observability extension.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// New builds an Engine over st.
func New(st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, dealflow.ErrNoStore
	}

	e := &Engine{
		store:      st,
		config:     dealflow.DefaultConfig(),
		logger:     slog.Default(),
		clock:      clockwork.NewRealClock(),
		extensions: ext.NewRegistry(slog.Default()),
	}
	for _, opt := range opts {
		opt(e)
	}
	// Extensions registered through options log with the default logger
	// until the registry is rebuilt with the configured one.
	e.extensions = rebind(e.extensions, e.logger)

	if err := e.defaults(); err != nil {
		return nil, err
	}

	e.registerObservability()
	e.broker = stream.NewBroker(e.logger, stream.WithClock(e.clock))
	e.extensions.Register(e.broker)

	runnerOpts := []workflow.Option{
		workflow.WithClock(e.clock),
		workflow.WithCodec(workflow.CodecByName(e.config.Runtime.Codec)),
		workflow.WithInterceptor(workflow.Chain(e.defaultInterceptors()...)),
	}
	if e.config.Runtime.LeaseTTL > 0 {
		runnerOpts = append(runnerOpts, workflow.WithLeaseTTL(e.config.Runtime.LeaseTTL))
	}
	if e.owner != "" {
		runnerOpts = append(runnerOpts, workflow.WithOwner(e.owner))
	}

	e.registry = workflow.NewRegistry()
	e.bus = event.NewBus(st, event.WithClock(e.clock))
	e.runner = workflow.NewRunner(e.registry, st, st, e.extensions, e.logger, runnerOpts...)
	e.registerWorkflows()

	e.scheduler = cron.NewScheduler(cron.WithClock(e.clock), cron.WithLogger(e.logger))
	if err := e.scheduler.Register(SweepEntry, e.config.Runtime.SweepSchedule, func(ctx context.Context) error {
		_, err := e.Sweep(ctx)
		return err
	}); err != nil {
		return nil, err
	}

	return e, nil
}

func rebind(old *ext.Registry, logger *slog.Logger) *ext.Registry {
	r := ext.NewRegistry(logger)
	for _, x := range old.Extensions() {
		r.Register(x)
	}
	return r
}

func (e *Engine) defaults() error {
	if e.documents == nil {
		if root := e.config.Documents.Root; root != "" {
			fs, err := docstore.NewFileSystem(root)
			if err != nil {
				return fmt.Errorf("engine: document store: %w", err)
			}
			e.documents = fs
		} else {
			e.documents = docstore.NewMemory()
		}
	}
	if e.notifier == nil {
		e.notifier = notify.NewLogSender(e.logger)
	}
	if e.config.Notify.RatePerRecipient > 0 {
		e.notifier = notify.NewThrottle(e.notifier, notify.ThrottleConfig{
			RatePerRecipient: e.config.Notify.RatePerRecipient,
			Burst:            e.config.Notify.Burst,
		})
	}
	if e.signer == nil {
		e.signer = provider.NewSandboxSigner()
	}
	if e.payments == nil {
		e.payments = provider.NewSandboxPayments()
	}
	if e.cache == nil {
		e.cache = cache.NewMemory(e.config.Redis.StatusTTL)
	}
	if e.retry == nil {
		p := workflow.DefaultRetry
		e.retry = &p
	}
	return nil
}

func (e *Engine) registerObservability() {
	if e.meterProvider != nil {
		e.extensions.Register(observability.NewMetricsExtensionWithMeter(e.meterProvider.Meter(instrumentationName)))
		return
	}
	e.extensions.Register(observability.NewMetricsExtension())
}

// defaultInterceptors builds recover, tracing, metrics, logging and
// timeout, followed by the interceptors passed as options.
func (e *Engine) defaultInterceptors() []workflow.Interceptor {
	tracing := mw.Tracing()
	if e.tracerProvider != nil {
		tracing = mw.TracingWithTracer(e.tracerProvider.Tracer(instrumentationName))
	}
	metrics := mw.Metrics()
	if e.meterProvider != nil {
		metrics = mw.MetricsWithMeter(e.meterProvider.Meter(instrumentationName))
	}

	out := []workflow.Interceptor{
		mw.Recover(e.logger),
		tracing,
		metrics,
		mw.Logging(e.logger),
		mw.Timeout(e.config.Runtime.StepTimeout),
	}
	return append(out, e.interceptors...)
}

func (e *Engine) registerWorkflows() {
	retry := *e.retry

	workflow.Register(e.registry, nda.Workflow(nda.Deps{
		Store:       e.store,
		Directory:   e.store,
		Documents:   e.documents,
		Signer:      e.signer,
		Notifier:    e.notifier,
		Cache:       e.cache,
		Config:      e.config.NDA,
		LegalTeamID: e.config.Notify.LegalTeamID,
		Retry:       retry,
	}))
	workflow.Register(e.registry, investment.Workflow(investment.Deps{
		Store:     e.store,
		Documents: e.documents,
		Payments:  e.payments,
		Notifier:  e.notifier,
		Events:    e.bus,
		Cache:     e.cache,
		Config:    e.config.Investment,
		Retry:     retry,
	}))
	workflow.Register(e.registry, production.Workflow(production.Deps{
		Store:     e.store,
		Documents: e.documents,
		Notifier:  e.notifier,
		Cache:     e.cache,
		Config:    e.config.Production,
		Retry:     retry,
	}))
}

// Start resumes runs left running by a previous process and starts the
// scheduler.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.runner.ResumeAll(ctx); err != nil {
		e.logger.Warn("failed to resume workflow runs", slog.String("error", err.Error()))
	}
	if err := e.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("engine: start scheduler: %w", err)
	}
	e.logger.Info("engine started",
		slog.String("owner", e.runner.Owner()),
		slog.Any("workflows", e.registry.Names()),
	)
	return nil
}

// Stop stops the scheduler and notifies Shutdown hooks. Runs in flight
// keep their checkpoints and are resumed by the next process.
func (e *Engine) Stop(ctx context.Context) error {
	err := e.scheduler.Stop(ctx)
	if err != nil {
		e.logger.Error("scheduler stop error", slog.String("error", err.Error()))
	}
	e.extensions.EmitShutdown(ctx)
	e.logger.Info("engine stopped")
	return err
}

// Sweep drives every due run once and returns how many it drove.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	start := e.clock.Now()
	n, err := e.runner.ResumeDue(ctx, e.config.Runtime.SweepBatch, e.config.Runtime.SweepConcurrency)
	if err != nil {
		return n, err
	}
	e.extensions.EmitSweepCompleted(ctx, n, e.clock.Since(start))
	return n, nil
}

// StartWorkflow starts a run of the named workflow with JSON params. A
// run rejected during its first execution is returned with the error.
func (e *Engine) StartWorkflow(ctx context.Context, name string, params json.RawMessage) (*workflow.Run, error) {
	return e.runner.StartRaw(ctx, name, params)
}

// Start starts a run with typed params.
func Start[T any](ctx context.Context, e *Engine, name string, params T) (*workflow.Run, error) {
	return workflow.Start(ctx, e.runner, name, params)
}

// Deliver hands an event to a run.
func (e *Engine) Deliver(ctx context.Context, runID id.RunID, name string, payload json.RawMessage) (*event.Event, error) {
	return e.runner.Deliver(ctx, runID, name, payload)
}

// Cancel cancels a run. Its compensations and cancel handler run before
// it is marked cancelled.
func (e *Engine) Cancel(ctx context.Context, runID id.RunID, reason string) error {
	return e.runner.Cancel(ctx, runID, reason)
}

// Instance returns a run.
func (e *Engine) Instance(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	return e.store.GetRun(ctx, runID)
}

// Instances lists runs.
func (e *Engine) Instances(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	return e.store.ListRuns(ctx, opts)
}

// Timeline returns the ordered steps and waits of a run.
func (e *Engine) Timeline(ctx context.Context, runID id.RunID) ([]workflow.TimelineEntry, error) {
	if _, err := e.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return e.runner.GetTimeline(ctx, runID)
}

// PendingWaits returns the open waits of a run.
func (e *Engine) PendingWaits(ctx context.Context, runID id.RunID) ([]*workflow.PendingEvent, error) {
	return e.runner.PendingWaits(ctx, runID)
}

// Status reads a cached deal status.
func (e *Engine) Status(ctx context.Context, kind, dealID string) (*cache.Entry, error) {
	return e.cache.GetStatus(ctx, cache.StatusKey(kind, dealID))
}

// Ping checks the store.
func (e *Engine) Ping(ctx context.Context) error { return e.store.Ping(ctx) }

// Store returns the engine store.
func (e *Engine) Store() store.Store { return e.store }

// Runner returns the workflow runner.
func (e *Engine) Runner() *workflow.Runner { return e.runner }

// Registry returns the workflow registry.
func (e *Engine) Registry() *workflow.Registry { return e.registry }

// Extensions returns the extension registry.
func (e *Engine) Extensions() *ext.Registry { return e.extensions }

// Scheduler returns the scheduler.
func (e *Engine) Scheduler() *cron.Scheduler { return e.scheduler }

// Stream returns the live event broker.
func (e *Engine) Stream() *stream.Broker { return e.broker }

// Config returns the engine configuration.
func (e *Engine) Config() dealflow.Config { return e.config }

// Clock returns the engine clock.
func (e *Engine) Clock() clockwork.Clock { return e.clock }

// Documents returns the document store.
func (e *Engine) Documents() docstore.Store { return e.documents }
