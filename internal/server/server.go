// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/comigor/panda-go/internal/agent"
	"github.com/comigor/panda-go/internal/history"
	"github.com/comigor/panda-go/internal/logger"
)

const (
	defaultLatest = 10
	// maxBodyBytes caps request bodies; an utterance is a sentence or two.
	maxBodyBytes = 64 << 10
)

// Assistant is the part of *agent.Agent the HTTP surface needs.
type Assistant interface {
	Submit(ctx context.Context, text string) (agent.Reply, error)
	Messages(ctx context.Context) ([]history.Message, error)
	Latest(ctx context.Context, n int) ([]history.Message, error)
	Count(ctx context.Context) (int, error)
	DeleteMessage(ctx context.Context, id int64) error
	Clear(ctx context.Context) error
}

type commandView struct {
	Action   string `json:"action"`
	Rule     string `json:"rule"`
	Argument string `json:"argument,omitempty"`
}

type replyView struct {
	TurnID  string          `json:"turn_id"`
	Text    string          `json:"text"`
	Source  agent.Source    `json:"source"`
	Command *commandView    `json:"command,omitempty"`
	Message history.Message `json:"message"`
	Error   string          `json:"error,omitempty"`
}

func newReplyView(r agent.Reply) replyView {
	v := replyView{TurnID: r.TurnID, Text: r.Text, Source: r.Source, Message: r.Message}
	if r.Command != nil {
		v.Command = &commandView{Action: string(r.Command.Action), Rule: r.Command.Rule}
		if r.Command.HasArgument {
			v.Command.Argument = r.Command.Argument
		}
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	return v
}

type submitRequest struct {
	Text string `json:"text" binding:"required"`
}

// NewRouter builds the gin engine serving a.
func NewRouter(a Assistant) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(), cors())

	h := &handlers{assistant: a}
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.POST("/", h.inference)

	msgs := r.Group("/messages")
	msgs.GET("", h.list)
	msgs.POST("", h.submit)
	msgs.DELETE("", h.clear)
	msgs.GET("/latest", h.latest)
	msgs.GET("/count", h.count)
	msgs.DELETE("/:id", h.deleteOne)
	return r
}

// Run serves handler on addr until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.L.Info("starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.L.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// requestLogger logs every request once it has been served.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.FromContext(c.Request.Context()).Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type handlers struct {
	assistant Assistant
}

func errorJSON(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// inference takes the raw request body as the utterance and answers in plain
// text.
func (h *handlers) inference(c *gin.Context) {
	ctx := c.Request.Context()
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.String(http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if err != nil {
		logger.FromContext(ctx).Error("read body error", "error", err)
		c.String(http.StatusBadRequest, "failed to read request body")
		return
	}
	reply, err := h.assistant.Submit(ctx, string(body))
	switch {
	case errors.Is(err, agent.ErrEmptyInput):
		c.String(http.StatusBadRequest, "empty request")
	case err != nil:
		logger.FromContext(ctx).Error("process error", "error", err)
		c.String(http.StatusInternalServerError, "failed to process request")
	default:
		c.String(http.StatusOK, reply.Text)
	}
}

func (h *handlers) submit(c *gin.Context) {
	var req submitRequest
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "body must be {\"text\": \"...\"}")
		return
	}
	reply, err := h.assistant.Submit(c.Request.Context(), req.Text)
	switch {
	case errors.Is(err, agent.ErrEmptyInput):
		errorJSON(c, http.StatusBadRequest, "text must not be blank")
	case err != nil:
		logger.FromContext(c.Request.Context()).Error("process error", "error", err)
		errorJSON(c, http.StatusInternalServerError, "failed to process message")
	default:
		c.JSON(http.StatusOK, newReplyView(reply))
	}
}

func (h *handlers) list(c *gin.Context) {
	msgs, err := h.assistant.Messages(c.Request.Context())
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *handlers) latest(c *gin.Context) {
	limit := defaultLatest
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errorJSON(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	msgs, err := h.assistant.Latest(c.Request.Context(), limit)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *handlers) count(c *gin.Context) {
	n, err := h.assistant.Count(c.Request.Context())
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *handlers) clear(c *gin.Context) {
	if err := h.assistant.Clear(c.Request.Context()); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) deleteOne(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid message id")
		return
	}
	err = h.assistant.DeleteMessage(c.Request.Context(), id)
	switch {
	case errors.Is(err, history.ErrNotFound):
		errorJSON(c, http.StatusNotFound, "message not found")
	case err != nil:
		errorJSON(c, http.StatusInternalServerError, err.Error())
	default:
		c.Status(http.StatusNoContent)
	}
}
