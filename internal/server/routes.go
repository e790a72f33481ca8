// Package server exposes a loaded model over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/born-ml/onnxrun/internal/api"
	"github.com/born-ml/onnxrun/internal/onnx"
	"github.com/born-ml/onnxrun/internal/tensor"
	"github.com/born-ml/onnxrun/internal/version"
)

var mode string = gin.ReleaseMode

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.ReleaseMode
	}

	gin.SetMode(mode)
}

// Server serves one model through its session pool.
type Server struct {
	model  *onnx.Model
	logger *slog.Logger
}

// New returns a server for model. A nil logger uses slog.Default().
func New(model *onnx.Model, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{model: model, logger: logger}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())

	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "onnxrun is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "onnxrun is running") })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, api.VersionResponse{Version: version.Version}) })

	r.GET("/api/info", s.InfoHandler)
	r.GET("/api/ops", s.OpsHandler)
	r.POST("/api/run", s.RunHandler)

	return r
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// InfoHandler describes the served model.
func (s *Server) InfoHandler(c *gin.Context) {
	resp := api.InfoResponse{
		ModelInfo:  *s.model.Info(),
		InputTypes: make(map[string]tensor.DataType),
		Contexts:   s.model.Contexts(),
		Sessions:   s.model.Pool().Size(),
	}
	for _, name := range s.model.InputNames() {
		if dt, ok := s.model.InputType(name); ok {
			resp.InputTypes[name] = dt
		}
	}
	c.JSON(http.StatusOK, resp)
}

// OpsHandler lists the operators the model's registry can resolve.
func (s *Server) OpsHandler(c *gin.Context) {
	var resp api.OpsResponse
	for _, d := range s.model.Registry().Descriptors() {
		op := api.OpInfo{Name: d.Name, Domain: d.Domain}
		for _, v := range d.Versions {
			op.Versions = append(op.Versions, v.Info.Version.String())
		}
		resp.Ops = append(resp.Ops, op)
	}
	c.JSON(http.StatusOK, resp)
}

// RunHandler runs the model once on a pooled session.
func (s *Server) RunHandler(c *gin.Context) {
	var req api.RunRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inputs, err := req.Decode()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	pool := s.model.Pool()
	sess, err := pool.Acquire(ctx)
	if err != nil {
		s.abort(c, err)
		return
	}
	defer pool.Release(sess)

	start := time.Now()
	out, err := sess.Run(ctx, inputs)
	if err != nil {
		s.abort(c, err)
		return
	}
	elapsed := time.Since(start)

	outputs, err := api.EncodeOutputs(out)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.logger.Debug("run", "session", sess.ID().String(), "duration", elapsed)
	c.JSON(http.StatusOK, api.RunResponse{
		Outputs:  outputs,
		Session:  sess.ID().String(),
		Duration: elapsed,
	})
}

func (s *Server) abort(c *gin.Context, err error) {
	var nodeErr *onnx.NodeError
	switch {
	case errors.Is(err, onnx.ErrMissingInput), errors.Is(err, onnx.ErrUnknownInput), errors.Is(err, onnx.ErrInputType):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, onnx.ErrPoolClosed), errors.Is(err, onnx.ErrSessionClosed):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{"error": err.Error()})
	case errors.As(err, &nodeErr):
		s.logger.Warn("run failed", "node", nodeErr.Node, "op", nodeErr.OpType, "context", nodeErr.Context, "error", nodeErr.Err)
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"error":   err.Error(),
			"node":    nodeErr.Node,
			"op":      nodeErr.OpType,
			"context": nodeErr.Context,
		})
	default:
		s.logger.Error("run failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Serve serves s on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("listening", "addr", ln.Addr().String(), "version", version.Version)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
