package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/harunnryd/asisten/pkg/adapters/stt"
	"github.com/harunnryd/asisten/pkg/adapters/tts"
	"github.com/harunnryd/asisten/pkg/assistant"
	"github.com/harunnryd/asisten/pkg/redact"
	"github.com/harunnryd/asisten/pkg/store"
)

// Assistant is the part of the orchestrator the control API drives.
type Assistant interface {
	Status() assistant.Status
	HandleEvent(ev stt.Event)
	Interrupt(reason string) tts.StopResult
}

// Conversation is the generator's memory, inspected and cleared over HTTP.
type Conversation interface {
	Describe() map[string]string
	Reset()
}

type Config struct {
	Addr string
	// HistoryLimit caps /turns; a smaller ?limit= wins.
	HistoryLimit int
	// Conversation enables /conversation when set.
	Conversation Conversation
}

// Server exposes health, status, the turn journal and manual controls.
type Server struct {
	cfg     Config
	echo    *echo.Echo
	asst    Assistant
	journal store.Journal
	log     *slog.Logger
}

type sayRequest struct {
	Text string `json:"text"`
}

type interruptRequest struct {
	Reason string `json:"reason"`
}

type interruptResponse struct {
	Attempted bool   `json:"attempted"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(cfg Config, asst Assistant, journal store.Journal, log *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if log == nil {
		log = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug("http_request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency))
			return nil
		},
	}))
	s := &Server{cfg: cfg, echo: e, asst: asst, journal: journal, log: log}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	s.echo.GET("/status", s.status)
	s.echo.GET("/turns", s.turns)
	s.echo.POST("/say", s.say)
	s.echo.POST("/interrupt", s.interrupt)
	if s.cfg.Conversation != nil {
		s.echo.GET("/conversation", s.conversation)
		s.echo.DELETE("/conversation", s.resetConversation)
	}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.cfg.Addr)
	}()
	s.log.Info("http_listening", slog.String("addr", s.cfg.Addr))
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.asst.Status())
}

func (s *Server) turns(c echo.Context) error {
	if s.journal == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "journal disabled"})
	}
	limit := s.cfg.HistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
		}
		if n < limit {
			limit = n
		}
	}
	recs, err := s.journal.Recent(c.Request().Context(), limit)
	if err != nil {
		s.log.Warn("journal_read_failed", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "journal unavailable"})
	}
	if recs == nil {
		recs = []store.TurnRecord{}
	}
	return c.JSON(http.StatusOK, recs)
}

// say injects a final transcript as if it had been recognized.
func (s *Server) say(c echo.Context) error {
	var req sayRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "text is required"})
	}
	if !s.asst.Status().Running {
		return c.JSON(http.StatusConflict, errorResponse{Error: "assistant is not running"})
	}
	s.log.Info("http_say", redact.String("text", text))
	s.asst.HandleEvent(stt.Final(text))
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) interrupt(c echo.Context) error {
	var req interruptRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
	}
	if req.Reason == "" {
		req.Reason = "http"
	}
	res := s.asst.Interrupt(req.Reason)
	out := interruptResponse{Attempted: res.Attempted, ElapsedMs: res.Elapsed.Milliseconds()}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) conversation(c echo.Context) error {
	return c.JSON(http.StatusOK, s.cfg.Conversation.Describe())
}

// resetConversation forgets the dialogue history. A turn already in flight
// keeps the context it started with.
func (s *Server) resetConversation(c echo.Context) error {
	s.cfg.Conversation.Reset()
	s.log.Info("conversation_reset")
	return c.NoContent(http.StatusNoContent)
}
