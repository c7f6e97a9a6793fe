package asisten

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/asisten/pkg/agent"
	"github.com/harunnryd/asisten/pkg/assistant"
	"github.com/harunnryd/asisten/pkg/httpapi"
	"github.com/harunnryd/asisten/pkg/llm"
	"github.com/harunnryd/asisten/pkg/logging"
	"github.com/harunnryd/asisten/pkg/metrics"
	"github.com/harunnryd/asisten/pkg/observers"
	"github.com/harunnryd/asisten/pkg/presenter"
	"github.com/harunnryd/asisten/pkg/processors"
	"github.com/harunnryd/asisten/pkg/redact"
	"github.com/harunnryd/asisten/pkg/runner"
	"github.com/harunnryd/asisten/pkg/store"
	"github.com/harunnryd/asisten/pkg/tools"
	"github.com/harunnryd/asisten/pkg/turn"
)

const drainTimeout = 30 * time.Second

type Engine struct {
	cfg       Config
	sessionID string
	log       *slog.Logger
	providers *ProviderRegistry

	orch    *assistant.Orchestrator
	agent   *agent.Agent
	journal store.Journal
	http    *httpapi.Server
	runner  *runner.LifecycleRunner

	asyncObs    *metrics.AsyncObserver
	observer    metrics.Observer
	timelineObs *observers.TimelineObserver
	usageObs    *observers.UsageObserver
}

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
	// Tools overrides the built-in tool registry built from Config.Tools.
	Tools llm.ToolRegistry
	// Journal overrides the journal opened from Config.Journal.
	Journal   store.Journal
	Listeners []assistant.Listener
	SessionID string
	Stdin     io.Reader
	// Stdout receives the console transcript. Nil disables it.
	Stdout io.Writer
	// Banner receives the startup banner. Nil disables it.
	Banner io.Writer
	Logger *slog.Logger
}

func NewEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)

	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	sessionID := strings.TrimSpace(opts.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	log := logging.NewComponentLogger(base, "engine").With("session_id", sessionID)

	log.Info("asisten_init",
		"environment", cfg.Environment,
		"llm_provider", cfg.Vendors.LLM.Provider,
		"stt_provider", cfg.Vendors.STT.Provider,
		"tts_provider", cfg.Vendors.TTS.Provider,
		"turn_strategy", cfg.Turn.Strategy,
		"journal_driver", cfg.Journal.Driver,
	)

	e := &Engine{cfg: cfg, sessionID: sessionID, log: log, providers: opts.Providers}
	if e.providers == nil {
		e.providers = NewProviderRegistry()
	}
	e.buildObservers(base)

	ok := false
	defer func() {
		if !ok {
			_ = e.closeResources()
		}
	}()

	env := Env{
		SessionID: sessionID,
		Stdin:     opts.Stdin,
		Stdout:    opts.Stdout,
		Observer:  e.observer,
		Logger:    base,
	}
	recog, err := e.providers.BuildSTT(cfg.Vendors.STT.Provider, cfg, env)
	if err != nil {
		return nil, err
	}
	speech, err := e.providers.BuildTTS(cfg.Vendors.TTS.Provider, cfg, env)
	if err != nil {
		return nil, err
	}
	adapter, err := e.providers.BuildLLM(cfg.Vendors.LLM.Provider, cfg, env)
	if err != nil {
		return nil, err
	}
	if so, ok := adapter.(interface{ SetObserver(metrics.Observer) }); ok {
		so.SetObserver(e.observer)
	}

	registry := opts.Tools
	if registry == nil {
		registry = tools.NewDefaultRegistry(toolsConfig(cfg))
	}
	e.agent = agent.New(adapter, registry, agent.Options{
		Instructions:  cfg.Agent.Instructions,
		MaxHistory:    cfg.Agent.MaxHistory,
		MaxTokens:     cfg.Agent.MaxTokens,
		MaxToolRounds: cfg.Agent.MaxToolRounds,
		Retry:         llm.RetryConfig{MaxAttempts: cfg.Agent.RetryAttempts},
		Tools: agent.ToolDispatcherOptions{
			Concurrency:  cfg.Tools.Concurrency,
			Timeout:      time.Duration(cfg.Tools.TimeoutMS) * time.Millisecond,
			Retries:      cfg.Tools.Retries,
			RetryBackoff: time.Duration(cfg.Tools.RetryBackoffMS) * time.Millisecond,
		},
		Observer: e.observer,
		Logger:   logging.NewComponentLogger(base, "agent"),
	})

	e.journal = opts.Journal
	if e.journal == nil {
		driver := strings.ToLower(strings.TrimSpace(cfg.Journal.Driver))
		e.journal, err = store.Open(ctx, driver, cfg.Journal.DSN, cfg.Journal.HistoryLimit)
		if err != nil {
			return nil, err
		}
	}

	strategy, err := turn.StrategyByName(cfg.Turn.Strategy, cfg.Turn.MinInterimWords)
	if err != nil {
		return nil, err
	}
	normalizer := processors.NewTextNormalizer(processors.TextNormalizerConfig{Replacements: cfg.Text.Replacements})
	limiter := processors.NewResponseLimiter(processors.ResponseLimiterConfig{
		MaxChars:     cfg.Text.MaxChars,
		MaxSentences: cfg.Text.MaxSentences,
	})

	var shape func(string) string
	if limiter.Enabled() {
		shape = limiter.Limit
	}

	e.orch = assistant.New(recog, e.agent, speech, assistant.Options{
		ExitKeywords:   cfg.Assistant.ExitKeywords,
		Farewell:       cfg.Assistant.Farewell,
		ApologyFormat:  cfg.Assistant.ApologyFormat,
		NoMatchMessage: cfg.Assistant.NoMatchMessage,
		StopTimeout:    time.Duration(cfg.Assistant.StopTimeoutMS) * time.Millisecond,
		Strategy:       strategy,
		SessionID:      sessionID,
		Normalize:      normalizer.Normalize,
		Shape:          shape,
		Journal:        e.journal,
		Observer:       e.observer,
		Logger:         logging.NewComponentLogger(base, "assistant"),
	})
	if opts.Stdout != nil {
		e.orch.Subscribe(presenter.NewConsole(opts.Stdout, presenter.Options{ShowThinking: true}))
	}
	for _, l := range opts.Listeners {
		if l != nil {
			e.orch.Subscribe(l)
		}
	}

	if cfg.HTTP.Enabled {
		e.http = httpapi.New(httpapi.Config{
			Addr:         cfg.HTTP.Addr,
			HistoryLimit: cfg.Journal.HistoryLimit,
			Conversation: e.agent,
		}, e.orch, e.journal, logging.NewComponentLogger(base, "http"))
	}

	drainer := runner.DrainerFunc(func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		err := e.orch.Stop(stopCtx)
		return errors.Join(err, e.orch.Drain())
	})
	e.runner = runner.NewLifecycleRunner(drainer, runner.Hooks{
		OnStart: e.onStart,
		OnStop:  e.onStop,
	}, drainTimeout)
	if opts.Banner != nil {
		e.runner.SetBannerOutput(opts.Banner)
	}

	ok = true
	return e, nil
}

func (e *Engine) buildObservers(base *slog.Logger) {
	cfg := e.cfg.Observability
	obsList := []metrics.Observer{
		observers.NewLatencyObserver(logging.NewComponentLogger(base, "latency")),
		observers.NewLoggerObserver(logging.NewComponentLogger(base, "metrics")),
	}
	if dir := strings.TrimSpace(cfg.ArtifactsDir); dir != "" {
		if cfg.RetentionDays > 0 {
			n, err := observers.PurgeArtifacts(dir, time.Duration(cfg.RetentionDays)*24*time.Hour)
			if err != nil {
				e.log.Warn("artifact_purge_failed", "dir", dir, "error", err)
			} else if n > 0 {
				e.log.Info("artifacts_purged", "dir", dir, "count", n)
			}
		}
		e.timelineObs = observers.NewTimelineObserver(dir)
		e.usageObs = observers.NewUsageObserver(dir)
		obsList = append(obsList, e.timelineObs, e.usageObs)
	}
	multi := observers.NewMultiObserver(obsList...)
	e.asyncObs = metrics.NewAsyncObserver(metrics.NewSamplingObserver(multi, cfg.SampleRate), cfg.MetricsBuffer)
	e.observer = observers.WithTags(e.asyncObs, map[string]string{"session_id": e.sessionID})
}

func toolsConfig(cfg Config) tools.Config {
	return tools.Config{
		Enabled:      cfg.Tools.Enabled,
		GeocodingURL: cfg.Tools.GeocodingBaseURL,
		ForecastURL:  cfg.Tools.WeatherBaseURL,
		SMS: tools.SMSConfig{
			AccountSID: cfg.Tools.SMS.AccountSID,
			AuthToken:  cfg.Tools.SMS.AuthToken,
			From:       cfg.Tools.SMS.From,
		},
	}
}

func (e *Engine) onStart(ctx context.Context) error {
	if err := e.orch.Start(ctx); err != nil {
		return err
	}
	if e.http != nil {
		go func() {
			if err := e.http.Start(ctx); err != nil {
				e.log.Error("http_server_failed", "addr", e.cfg.HTTP.Addr, "error", err)
			}
		}()
	}
	e.log.Info("engine_ready", "message", "Asistente listo", "http", e.cfg.HTTP.Enabled)
	return nil
}

func (e *Engine) onStop() error {
	err := e.orch.Close()
	if e.http != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if herr := e.http.Shutdown(shutdownCtx); herr != nil {
			e.log.Debug("http_shutdown", "error", herr)
		}
		cancel()
	}
	if e.usageObs != nil {
		// Flush queued events so the summary reflects the whole session.
		e.asyncObs.Close()
		if sum, ok := e.usageObs.Summary(e.sessionID); ok {
			e.log.Info("session_usage",
				"turns", sum.Turns,
				"barge_ins", sum.BargeIns,
				"llm_calls", sum.LLMCalls,
				"total_tokens", sum.TotalTokens,
			)
		}
	}
	err = errors.Join(err, e.closeResources())
	e.log.Info("shutdown", "goroutines", runtime.NumGoroutine(), "dropped_metrics", e.asyncObs.Dropped())
	return err
}

func (e *Engine) closeResources() error {
	var err error
	if e.asyncObs != nil {
		e.asyncObs.Close()
	}
	if e.timelineObs != nil {
		err = errors.Join(err, e.timelineObs.Close())
	}
	if e.usageObs != nil {
		err = errors.Join(err, e.usageObs.Close())
	}
	if e.journal != nil {
		err = errors.Join(err, e.journal.Close())
	}
	return err
}

// Run blocks until ctx ends, Stop is called or the user says an exit phrase,
// then drains in-flight turns and releases resources.
func (e *Engine) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.orch.Exited():
			cancel()
		case <-ctx.Done():
		}
	}()
	return e.runner.Run(ctx)
}

func (e *Engine) Stop() error {
	return e.runner.Stop()
}

func (e *Engine) Orchestrator() *assistant.Orchestrator { return e.orch }
func (e *Engine) Agent() *agent.Agent                   { return e.agent }
func (e *Engine) Journal() store.Journal                { return e.journal }
func (e *Engine) SessionID() string                     { return e.sessionID }
func (e *Engine) Config() Config                        { return e.cfg }
func (e *Engine) ProviderRegistry() *ProviderRegistry   { return e.providers }
func (e *Engine) State() runner.State                   { return e.runner.State() }

var (
	_ assistant.ResponseGenerator = (*agent.Agent)(nil)
	_ assistant.ReplyCommitter    = (*agent.Agent)(nil)
	_ httpapi.Conversation        = (*agent.Agent)(nil)
)
