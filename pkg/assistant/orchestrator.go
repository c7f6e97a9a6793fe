package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/harunnryd/asisten/pkg/adapters/stt"
	"github.com/harunnryd/asisten/pkg/adapters/tts"
	"github.com/harunnryd/asisten/pkg/errorsx"
	"github.com/harunnryd/asisten/pkg/metrics"
	"github.com/harunnryd/asisten/pkg/redact"
	"github.com/harunnryd/asisten/pkg/store"
	"github.com/harunnryd/asisten/pkg/turn"
)

// Status is a point-in-time view of the orchestrator.
type Status struct {
	Running   bool   `json:"running"`
	SessionID string `json:"session_id,omitempty"`
	TurnID    string `json:"turn_id,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Text      string `json:"text,omitempty"`
	InFlight  int64  `json:"in_flight"`
	Exited    bool   `json:"exited"`
}

// Orchestrator turns recognition events into assistant turns. At most one
// turn is live at a time; a new utterance cancels the previous one and stops
// its speech.
type Orchestrator struct {
	recog  stt.RecognitionStream
	gen    ResponseGenerator
	speech tts.SpeechOutput
	opts   Options
	log    *slog.Logger
	obs    metrics.Observer

	slot   turn.Slot
	notify *notifier

	mu         sync.Mutex
	running    bool
	loopCancel context.CancelFunc

	exited   chan struct{}
	exitOnce sync.Once

	wg       sync.WaitGroup
	inflight atomic.Int64
}

func New(recog stt.RecognitionStream, gen ResponseGenerator, speech tts.SpeechOutput, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		recog:  recog,
		gen:    gen,
		speech: speech,
		opts:   opts,
		log:    opts.Logger,
		obs:    opts.Observer,
		notify: newNotifier(),
		exited: make(chan struct{}),
	}
}

// Subscribe registers l for lifecycle notifications and returns its
// unsubscribe function.
func (o *Orchestrator) Subscribe(l Listener) func() {
	return o.notify.subscribe(l)
}

// Exited is closed once an exit phrase has been handled.
func (o *Orchestrator) Exited() <-chan struct{} { return o.exited }

// Running reports whether recognition events are being handled.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Start begins consuming recognition results. Calling it while running is a
// no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil
	}
	if o.loopCancel != nil {
		o.loopCancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	o.running = true
	o.loopCancel = cancel
	o.mu.Unlock()

	go o.dispatch(loopCtx, o.recog.Results())

	if err := o.recog.Start(ctx); err != nil {
		o.mu.Lock()
		o.running = false
		o.loopCancel = nil
		o.mu.Unlock()
		cancel()
		o.log.Error("recognition_start_failed", slog.String("provider", o.recog.Name()), slog.Any("error", err))
		return errorsx.Wrap(err, errorsx.ReasonRecognitionStart)
	}
	o.log.Info("orchestrator_started",
		slog.String("recognition", o.recog.Name()),
		slog.String("speech", o.speech.Name()),
		slog.String("strategy", o.opts.Strategy.Name()))
	return nil
}

// Stop halts event handling, interrupts the current turn and stops
// recognition. It does not wait for the dispatch loop, so it may be called
// from a listener or from within event handling.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	o.mu.Lock()
	wasRunning := o.running
	o.running = false
	if o.loopCancel != nil {
		o.loopCancel()
		o.loopCancel = nil
	}
	o.mu.Unlock()

	o.Interrupt("stop")
	if err := o.recog.Stop(ctx); err != nil {
		o.log.Warn("recognition_stop_failed", slog.String("provider", o.recog.Name()), slog.Any("error", err))
		return errorsx.Wrap(err, errorsx.ReasonRecognitionStop)
	}
	if wasRunning {
		o.log.Info("orchestrator_stopped")
	}
	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context, results <-chan stt.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-results:
			if !ok {
				return
			}
			o.HandleEvent(ev)
		}
	}
}

// HandleEvent routes one recognition event. It is safe for concurrent use;
// events arriving while the orchestrator is stopped are dropped.
func (o *Orchestrator) HandleEvent(ev stt.Event) {
	if !o.Running() {
		o.log.Debug("recognition_event_dropped", slog.String("kind", ev.Kind.String()))
		return
	}
	o.record(metrics.EventRecognition, 1, map[string]string{"kind": ev.Kind.String()})

	switch ev.Kind {
	case stt.EventInterim:
		text := strings.TrimSpace(ev.Text)
		if text == "" || !o.opts.Strategy.BargeIn(text) {
			return
		}
		o.Interrupt("barge_in")
	case stt.EventFinal:
		o.onFinal(ev.Text)
	case stt.EventNoMatch:
		o.notify.publish(Event{Kind: ErrorOccurred, Text: o.opts.NoMatchMessage})
	case stt.EventError:
		msg := ev.Message
		if msg == "" {
			msg = "recognition error"
		}
		o.log.Warn("recognition_error", slog.String("provider", o.recog.Name()), slog.String("message", msg))
		o.notify.publish(Event{Kind: ErrorOccurred, Text: msg})
	case stt.EventSessionStopped:
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		o.log.Info("recognition_session_stopped", slog.String("provider", o.recog.Name()))
	}
}

func (o *Orchestrator) onFinal(raw string) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return
	}
	interrupted, _ := o.interrupt("user_spoke")
	o.notify.publish(Event{Kind: UserSpoke, Text: text})
	o.log.Info("user_spoke", redact.String("text", text))

	if o.isExit(text) {
		o.exit()
		return
	}

	input := text
	if o.opts.Normalize != nil {
		input = o.opts.Normalize(text)
	}

	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	t := turn.New(context.Background(), text, turn.PhaseListenerFunc(o.onPhaseChange))
	o.wg.Add(1)
	o.inflight.Add(1)
	prev := o.slot.Replace(t, func() {
		o.notify.publish(Event{Kind: AssistantResponding, Text: text, TurnID: t.ID()})
		o.record(metrics.EventTurnStarted, 1, map[string]string{"turn_id": t.ID()})
	})
	o.mu.Unlock()

	// a concurrent final installed prev after our interrupt
	if prev != nil && prev != interrupted {
		o.stopSpeaking("replaced")
	}
	go o.runTurn(t, input)
}

func (o *Orchestrator) isExit(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range o.opts.ExitKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) exit() {
	o.log.Info("exit_requested")
	if err := o.Stop(context.Background()); err != nil {
		o.log.Warn("exit_stop_failed", slog.Any("error", err))
	}
	if err := o.speech.Speak(context.Background(), o.opts.Farewell); err != nil {
		o.log.Warn("farewell_failed", slog.Any("error", err))
	}
	o.notify.publish(Event{Kind: AssistantResponded, Text: o.opts.Farewell})
	o.exitOnce.Do(func() { close(o.exited) })
}

type outcome struct {
	reply string
	err   error
}

func (o *Orchestrator) runTurn(t *turn.Turn, input string) {
	var out outcome
	defer o.wg.Done()
	defer o.finish(t, &out)

	ctx, span := tracer.Start(t.Context(), "assistant turn",
		trace.WithAttributes(attribute.String("turn_id", t.ID())))
	defer span.End()

	start := time.Now()
	reply, err := o.generate(ctx, input)
	o.record(metrics.EventGenerationDone, float64(time.Since(start).Milliseconds()), map[string]string{
		"turn_id": t.ID(),
		"status":  statusOf(err),
	})
	if t.Cancelled() || errors.Is(err, context.Canceled) {
		t.Cancel("generation_cancelled")
		return
	}
	if err != nil {
		out.err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
		o.fail(ctx, t, err)
		return
	}

	if o.opts.Shape != nil {
		reply = o.opts.Shape(reply)
	}
	out.reply = reply
	live := o.slot.IfLive(t, func() {
		if c, ok := o.gen.(ReplyCommitter); ok {
			c.Commit(input, reply)
		}
		o.notify.publish(Event{Kind: AssistantResponded, Text: reply, TurnID: t.ID()})
		_ = t.Transition(turn.PhaseSpeaking, "reply_ready")
	})
	if !live {
		t.Cancel("superseded")
		return
	}
	if strings.TrimSpace(reply) == "" {
		_ = t.Transition(turn.PhaseCompleted, "empty_reply")
		return
	}

	err = o.speak(ctx, t, reply)
	switch {
	case err == nil:
		// a concurrent cancel may already have ended the turn
		_ = t.Transition(turn.PhaseCompleted, "spoken")
	case t.Cancelled() || errors.Is(err, context.Canceled):
		t.Cancel("speech_cancelled")
	case errors.Is(err, tts.ErrSpeechStopped):
		t.Cancel("speech_stopped")
	default:
		out.err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "speak")
		o.fail(ctx, t, errorsx.Wrap(err, errorsx.ReasonSpeak))
	}
}

func (o *Orchestrator) generate(ctx context.Context, input string) (string, error) {
	ctx, span := tracer.Start(ctx, "generate")
	defer span.End()
	reply, err := o.gen.Respond(ctx, input)
	if err != nil && !errors.Is(err, context.Canceled) {
		span.RecordError(err)
		return "", errorsx.Wrap(err, errorsx.ReasonGenerate)
	}
	return reply, err
}

func (o *Orchestrator) speak(ctx context.Context, t *turn.Turn, text string) error {
	ctx, span := tracer.Start(ctx, "speak",
		trace.WithAttributes(attribute.String("provider", o.speech.Name())))
	defer span.End()
	o.record(metrics.EventSpeechStarted, 1, map[string]string{"turn_id": t.ID()})
	start := time.Now()
	err := o.speech.Speak(ctx, text)
	o.record(metrics.EventSpeechDone, float64(time.Since(start).Milliseconds()), map[string]string{
		"turn_id": t.ID(),
		"status":  statusOf(err),
	})
	return err
}

// fail reports err once, only while t is live, then speaks the apology with
// the turn's context so a barge-in can still cut it off.
func (o *Orchestrator) fail(ctx context.Context, t *turn.Turn, err error) {
	msg := fmt.Sprintf(o.opts.ApologyFormat, err.Error())
	reason := string(errorsx.Reason(err))
	reported := o.slot.IfLive(t, func() {
		if t.Transition(turn.PhaseFailed, reason) == nil {
			o.notify.publish(Event{Kind: ErrorOccurred, Text: msg, TurnID: t.ID()})
		}
	})
	if !reported {
		t.Cancel("superseded")
		return
	}
	o.log.Error("turn_failed", slog.String("turn_id", t.ID()), slog.String("reason", reason), slog.Any("error", err))
	if serr := o.speech.Speak(ctx, msg); serr != nil && !isCancellation(serr) {
		o.log.Warn("apology_failed", slog.String("turn_id", t.ID()), slog.Any("error", serr))
	}
}

func (o *Orchestrator) finish(t *turn.Turn, out *outcome) {
	o.slot.Release(t)
	t.Close()
	o.inflight.Add(-1)
	if o.opts.Journal == nil {
		return
	}
	rec := store.TurnRecord{
		ID:        t.ID(),
		SessionID: o.opts.SessionID,
		UserText:  redact.Text(t.Text()),
		Reply:     redact.Text(out.reply),
		Phase:     t.Phase().String(),
		StartedAt: t.CreatedAt(),
		EndedAt:   t.EndedAt(),
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now()
	}
	if out.err != nil {
		rec.Error = out.err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.opts.Journal.Append(ctx, rec); err != nil {
		o.log.Warn("journal_append_failed", slog.String("turn_id", t.ID()), slog.Any("error", err))
	}
}

// Interrupt cancels the current turn and asks the speech output to stop.
// With no current turn it does nothing and reports an unattempted stop.
// Stop failures are logged and returned, never raised.
func (o *Orchestrator) Interrupt(reason string) tts.StopResult {
	_, res := o.interrupt(reason)
	return res
}

func (o *Orchestrator) interrupt(reason string) (*turn.Turn, tts.StopResult) {
	t, cancelled := o.slot.Interrupt(reason)
	if t == nil {
		return nil, tts.StopResult{}
	}
	if cancelled {
		o.log.Info("turn_interrupted", slog.String("turn_id", t.ID()), slog.String("reason", reason))
		o.record(metrics.EventBargeIn, 1, map[string]string{"turn_id": t.ID(), "reason": reason})
	}
	return t, o.stopSpeaking(reason)
}

func (o *Orchestrator) stopSpeaking(reason string) tts.StopResult {
	res := tts.Stop(context.Background(), o.speech, o.opts.StopTimeout)
	status := "ok"
	if res.Err != nil {
		status = "error"
		o.log.Warn("stop_speaking_failed",
			slog.String("provider", o.speech.Name()),
			slog.String("reason", reason),
			slog.Duration("elapsed", res.Elapsed),
			slog.Any("error", res.Err))
	}
	o.record(metrics.EventStopSpeaking, float64(res.Elapsed.Milliseconds()), map[string]string{
		"reason": reason,
		"status": status,
	})
	return res
}

// Drain waits for in-flight turns to unwind.
func (o *Orchestrator) Drain() error {
	o.wg.Wait()
	return nil
}

// Close stops the orchestrator, waits for turns and flushes pending
// notifications. Listeners must not call Close.
func (o *Orchestrator) Close() error {
	err := o.Stop(context.Background())
	_ = o.Drain()
	o.notify.close()
	return err
}

func (o *Orchestrator) Status() Status {
	st := Status{
		Running:   o.Running(),
		SessionID: o.opts.SessionID,
		InFlight:  o.inflight.Load(),
	}
	select {
	case <-o.exited:
		st.Exited = true
	default:
	}
	if t := o.slot.Current(); t != nil {
		st.TurnID = t.ID()
		st.Phase = t.Phase().String()
		st.Text = redact.Text(t.Text())
	}
	return st
}

func (o *Orchestrator) onPhaseChange(ev turn.PhaseChange) {
	o.record(metrics.EventTurnPhase, 1, map[string]string{
		"turn_id": ev.TurnID,
		"from":    ev.From.String(),
		"to":      ev.To.String(),
		"reason":  ev.Reason,
	})
	o.log.Debug("turn_phase",
		slog.String("turn_id", ev.TurnID),
		slog.String("from", ev.From.String()),
		slog.String("to", ev.To.String()),
		slog.String("reason", ev.Reason))
}

func (o *Orchestrator) record(name string, value float64, tags map[string]string) {
	if tags == nil {
		tags = map[string]string{}
	}
	if o.opts.SessionID != "" {
		tags["session_id"] = o.opts.SessionID
	}
	o.obs.RecordEvent(metrics.MetricsEvent{Name: name, Time: time.Now(), Value: value, Tags: tags})
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, tts.ErrSpeechStopped)
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isCancellation(err):
		return "cancelled"
	default:
		return "error"
	}
}
