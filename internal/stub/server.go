// Package stub serves a fake text-generation endpoint for local runs and
// end-to-end tests.
//
// POST /generate accepts the generation payload and answers with
// {"model", "response", "done": true, "eval_count"}. Faults are injected per
// request with ?status=503 and ?delay=250ms (or a bare millisecond count), or
// for every request through Options.
package stub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/genload/internal/scenario"
)

// DefaultModel is reported when the request names none.
const DefaultModel = "genload-stub"

// MaxTokens bounds num_tokens per request.
const MaxTokens = 4096

// Options configures the stub.
type Options struct {
	// Status, when set, is returned for every generation request.
	Status int
	// Delay is added before every generation response.
	Delay time.Duration
	// Model overrides the model name in responses.
	Model  string
	Logger logrus.FieldLogger
}

// GenerateResponse is the body of a successful generation.
type GenerateResponse struct {
	Model     string `json:"model"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count"`
}

// Server is the stub generation service.
type Server struct {
	opts   Options
	log    logrus.FieldLogger
	router *gin.Engine

	requests atomic.Int64
	failures atomic.Int64
}

// New builds a stub server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		opts.Logger = l
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}

	gin.SetMode(gin.ReleaseMode)

	s := &Server{opts: opts, log: opts.Logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.logRequests())
	r.POST(scenario.DefaultPath, s.generate)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	s.router = r

	return s
}

// Handler exposes the routes, for httptest or embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Requests is the number of generation requests received.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// Failures is the number of generation requests answered with an error.
func (s *Server) Failures() int64 {
	return s.failures.Load()
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", ln.Addr().String()).Info("stub listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) generate(c *gin.Context) {
	s.requests.Add(1)

	delay, err := s.delayFor(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_delay", err.Error())
		return
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-c.Request.Context().Done():
			s.failures.Add(1)
			return
		}
	}

	status, err := s.statusFor(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_status", err.Error())
		return
	}
	if status >= 400 {
		s.fail(c, status, "simulated_error", fmt.Sprintf("simulated error %d", status))
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_request", "failed to read request body: "+err.Error())
		return
	}
	p, err := scenario.DecodePayload(body)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_request", "failed to parse request body: "+err.Error())
		return
	}
	if strings.TrimSpace(p.Prompt) == "" {
		s.fail(c, http.StatusBadRequest, "invalid_request", "prompt is required")
		return
	}
	if n := p.Options.NumTokens; n < 0 || n > MaxTokens {
		s.fail(c, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("num_tokens must be between 0 and %d, got %d", MaxTokens, n))
		return
	}

	model := p.Model
	if model == "" {
		model = s.opts.Model
	}
	tokens := p.Options.NumTokens

	if p.Stream {
		s.stream(c, model, tokens)
		return
	}

	c.JSON(status, GenerateResponse{
		Model:     model,
		Response:  completion(tokens),
		Done:      true,
		EvalCount: tokens,
	})
}

// stream writes one JSON object per token followed by a done marker.
func (s *Server) stream(c *gin.Context, model string, tokens int) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)

	enc := json.NewEncoder(c.Writer)
	for i := 0; i < tokens; i++ {
		if err := enc.Encode(GenerateResponse{Model: model, Response: word(i) + " "}); err != nil {
			return
		}
		c.Writer.Flush()
	}
	_ = enc.Encode(GenerateResponse{Model: model, Done: true, EvalCount: tokens})
	c.Writer.Flush()
}

func (s *Server) fail(c *gin.Context, status int, kind, msg string) {
	s.failures.Add(1)
	s.log.WithFields(logrus.Fields{
		"request_id": c.GetString("request_id"),
		"status":     status,
		"type":       kind,
	}).Debug(msg)

	c.JSON(status, gin.H{"error": gin.H{"type": kind, "message": msg}})
}

func (s *Server) statusFor(c *gin.Context) (int, error) {
	raw := c.Query("status")
	if raw == "" {
		if s.opts.Status != 0 {
			return s.opts.Status, nil
		}
		return http.StatusOK, nil
	}
	code, err := strconv.Atoi(raw)
	if err != nil || code < 100 || code > 599 {
		return 0, fmt.Errorf("invalid status %q", raw)
	}
	return code, nil
}

func (s *Server) delayFor(c *gin.Context) (time.Duration, error) {
	raw := c.Query("delay")
	if raw == "" {
		return s.opts.Delay, nil
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q", raw)
	}
	return d, nil
}

var words = []string{"the", "quick", "brown", "fox", "jumps", "over", "a", "lazy", "dog"}

func word(i int) string {
	return words[i%len(words)]
}

func completion(tokens int) string {
	parts := make([]string, tokens)
	for i := range parts {
		parts[i] = word(i)
	}
	return strings.Join(parts, " ")
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := "req_" + uuid.NewString()[:8]
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Debug("request completed")
	}
}
