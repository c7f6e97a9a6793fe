package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/harunnryd/asisten/pkg/adapters/stt"
	"github.com/harunnryd/asisten/pkg/errorsx"
	"github.com/harunnryd/asisten/pkg/logging"
)

var ErrNotStarted = errors.New("deepgram: not started")

type DeepgramParams struct {
	EchoCancellation bool
	UtteranceEndMS   int
}

type Config struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int
	Encoding   string
	Interim    bool
	VADEvents  bool
	SessionID  string
	Params     DeepgramParams
	// Source, when set, is copied into the live connection after Start.
	Source io.Reader
}

// RecognitionStream streams PCM audio to Deepgram live transcription and
// turns its callbacks into recognition events. Audio arrives through Write
// or Config.Source.
type RecognitionStream struct {
	cfg    Config
	out    chan stt.Event
	logger *slog.Logger

	mu         sync.Mutex
	dgClient   *client.WSCallback
	cancel     context.CancelFunc
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	started    bool

	// asmMu is separate from mu so callbacks never wait on Stop.
	asmMu      sync.Mutex
	metaLogged bool
	asm        assembler
}

func New(cfg Config) *RecognitionStream {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "linear16"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "es"
	}
	return &RecognitionStream{
		cfg:    cfg,
		out:    make(chan stt.Event, 256),
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
	}
}

func (s *RecognitionStream) Name() string { return "deepgram_streaming" }

func (s *RecognitionStream) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          s.cfg.Model,
		Language:       s.cfg.Language,
		Encoding:       s.cfg.Encoding,
		SampleRate:     s.cfg.SampleRate,
		InterimResults: s.cfg.Interim,
		VadEvents:      s.cfg.VADEvents,
		SmartFormat:    true,
	}
	if s.cfg.Params.UtteranceEndMS > 0 {
		transcriptOptions.UtteranceEndMs = fmt.Sprintf("%d", s.cfg.Params.UtteranceEndMS)
	}
	// Echo cancellation is not exposed by SDK v3.5.0.
	if s.cfg.Params.EchoCancellation {
		s.logger.Debug("echo_cancellation_requested", slog.String("note", "not supported in SDK"))
	}

	s.logger.Info("initializing deepgram connection",
		slog.String("session_id", s.cfg.SessionID),
		slog.String("model", s.cfg.Model),
		slog.String("language", s.cfg.Language),
		slog.Bool("vad_events", s.cfg.VADEvents),
		slog.Int("sample_rate", s.cfg.SampleRate))

	dgClient, err := client.NewWSUsingCallback(runCtx, s.cfg.APIKey, clientOptions, transcriptOptions, &callback{parent: s})
	if err != nil {
		cancel()
		return errorsx.Wrapf(err, errorsx.ReasonRecognitionStart, "deepgram client")
	}
	if connected := dgClient.Connect(); !connected {
		cancel()
		return errorsx.New(errorsx.ReasonRecognitionStart, "deepgram connection failed")
	}
	s.dgClient = dgClient
	s.cancel = cancel
	s.pipeReader, s.pipeWriter = io.Pipe()
	s.started = true
	s.asmMu.Lock()
	s.asm = assembler{}
	s.asmMu.Unlock()

	reader := s.pipeReader
	go func() {
		if err := dgClient.Stream(reader); err != nil && runCtx.Err() == nil {
			s.logger.Error("deepgram_stream_error", slog.String("error", err.Error()))
			s.emit(stt.Error("recognition stream failed: " + err.Error()))
		}
	}()
	if s.cfg.Source != nil {
		writer := s.pipeWriter
		go func() {
			if _, err := io.Copy(writer, s.cfg.Source); err != nil && runCtx.Err() == nil {
				s.logger.Warn("deepgram_source_copy_error", slog.String("error", err.Error()))
			}
		}()
	}
	s.logger.Info("deepgram_connected", slog.String("session_id", s.cfg.SessionID))
	return nil
}

func (s *RecognitionStream) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.logger.Info("closing deepgram connection", slog.String("session_id", s.cfg.SessionID))
	s.started = false
	if s.cancel != nil {
		s.cancel()
	}
	if s.pipeWriter != nil {
		_ = s.pipeWriter.Close()
	}
	if s.dgClient != nil {
		s.dgClient.Stop()
		s.dgClient = nil
	}
	return nil
}

// Write forwards raw audio to the live connection.
func (s *RecognitionStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	w := s.pipeWriter
	started := s.started
	s.mu.Unlock()
	if !started || w == nil {
		return 0, ErrNotStarted
	}
	n, err := w.Write(p)
	if err != nil {
		s.logger.Error("failed to send audio to deepgram", slog.String("error", err.Error()))
	}
	return n, err
}

func (s *RecognitionStream) Results() <-chan stt.Event { return s.out }

func (s *RecognitionStream) emit(ev stt.Event) {
	select {
	case s.out <- ev:
	default:
		s.logger.Warn("deepgram_out_channel_full", slog.String("kind", ev.Kind.String()))
	}
}

func (s *RecognitionStream) emitAll(evs []stt.Event) {
	for _, ev := range evs {
		s.emit(ev)
	}
}

// --- Callback Implementation ---

type callback struct {
	parent *RecognitionStream
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.parent.logger.Info("deepgram_connection_opened")
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	transcript := ""
	if len(mr.Channel.Alternatives) > 0 {
		transcript = mr.Channel.Alternatives[0].Transcript
	}
	c.parent.logger.Debug("transcript_received",
		slog.String("transcript", transcript),
		slog.Bool("is_final", mr.IsFinal),
		slog.Bool("speech_final", mr.SpeechFinal))
	c.parent.asmMu.Lock()
	evs := c.parent.asm.transcript(transcript, mr.IsFinal, mr.SpeechFinal)
	c.parent.asmMu.Unlock()
	c.parent.emitAll(evs)
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	c.parent.asmMu.Lock()
	first := !c.parent.metaLogged
	c.parent.metaLogged = true
	c.parent.asmMu.Unlock()
	if first {
		c.parent.logger.Info("deepgram_metadata_received", slog.String("request_id", md.RequestID))
	}
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	c.parent.logger.Debug("speech_started_event")
	c.parent.asmMu.Lock()
	c.parent.asm.speechStarted()
	c.parent.asmMu.Unlock()
	return nil
}

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	c.parent.logger.Debug("utterance_end_event", slog.Int("utterance_end_ms", c.parent.cfg.Params.UtteranceEndMS))
	c.parent.asmMu.Lock()
	evs := c.parent.asm.utteranceEnd()
	c.parent.asmMu.Unlock()
	c.parent.emitAll(evs)
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.parent.logger.Info("deepgram_connection_closed")
	c.parent.emit(stt.SessionStopped())
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.logger.Error("deepgram_error",
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	msg := er.ErrMsg
	if msg == "" {
		msg = er.ErrCode
	}
	c.parent.emit(stt.Error(msg))
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram_unhandled_event", slog.String("data", string(byData)))
	return nil
}

var _ stt.RecognitionStream = (*RecognitionStream)(nil)
var _ io.Writer = (*RecognitionStream)(nil)
