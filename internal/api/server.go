package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"KOL-Agent/internal/agent"
	"KOL-Agent/internal/auth"
	xerrors "KOL-Agent/internal/errors"
	"KOL-Agent/internal/observability/metrics"
	"KOL-Agent/internal/task"
	"KOL-Agent/pkg/logger"
)

const (
	// SourceAPI tags invocations issued through the REST surface.
	SourceAPI = "api"

	defaultShutdownTimeout = 5 * time.Second
	maxBodyBytes           = 1 << 20
)

// Server 负责暴露 REST 接口，供外部驱动智能体执行。
type Server struct {
	addr            string
	shutdownTimeout time.Duration
	agent           *agent.Agent
	tasks           *task.Service
	auth            *auth.Service
	mcpPath         string
	mcp             http.Handler
	log             *slog.Logger
}

// Option customises a Server.
type Option func(*Server)

// WithTaskService enables the /api/v1/tasks endpoints.
func WithTaskService(svc *task.Service) Option {
	return func(s *Server) { s.tasks = svc }
}

// WithAuth protects the API routes with bearer tokens.
func WithAuth(svc *auth.Service) Option {
	return func(s *Server) { s.auth = svc }
}

// WithMCPHandler mounts the streamable MCP transport at path.
func WithMCPHandler(path string, h http.Handler) Option {
	return func(s *Server) {
		if path == "" {
			path = "/mcp"
		}
		s.mcpPath = path
		s.mcp = h
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, ag *agent.Agent, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		shutdownTimeout: defaultShutdownTimeout,
		agent:           ag,
		log:             logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 构建完整的路由表。
func (s *Server) Handler() http.Handler {
	invoke := s.protect("tool_invocation", map[string][]string{"*": {auth.PermissionToolsInvoke}})
	tasks := s.protect("task_api", map[string][]string{
		http.MethodGet:  {auth.PermissionTasksRead},
		http.MethodPost: {auth.PermissionTasksWrite},
	})

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", s.instrument("healthz", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /api/v1/tools", s.instrument("tools_list", invoke(http.HandlerFunc(s.handleListTools))))
	mux.Handle("POST /api/v1/tools/{name}", s.instrument("tools_invoke", invoke(http.HandlerFunc(s.handleInvokeTool))))
	mux.Handle("POST /api/v1/tasks", s.instrument("tasks_submit", tasks(http.HandlerFunc(s.handleSubmitTask))))
	mux.Handle("GET /api/v1/tasks", s.instrument("tasks_list", tasks(http.HandlerFunc(s.handleListTasks))))
	mux.Handle("GET /api/v1/tasks/stats", s.instrument("tasks_stats", tasks(http.HandlerFunc(s.handleTaskStats))))
	mux.Handle("GET /api/v1/tasks/{id}", s.instrument("tasks_detail", tasks(http.HandlerFunc(s.handleTaskDetail))))
	if s.mcp != nil {
		mux.Handle(s.mcpPath, s.instrument("mcp", invoke(s.mcp)))
	}
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", slog.String("address", s.addr), slog.String("mcp_path", s.mcpPath))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("API 服务关闭超时", slog.Any("error", err))
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) protect(event string, perms map[string][]string) func(http.Handler) http.Handler {
	if s.auth == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.auth.Middleware(auth.MiddlewareConfig{RequiredPermissions: perms, AuditEvent: event})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"startedAt": s.agent.StartedAt().UTC(),
		"tasks":     s.tasks != nil,
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.agent.Tools()})
}

type invokeRequest struct {
	Arguments agent.Arguments `json:"arguments"`
}

func (s *Server) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req invokeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.agent.Execute(r.Context(), agent.ToolRequest{Tool: name, Arguments: req.Arguments, Source: SourceAPI})
	if err != nil {
		writeErrorMessage(w, err, s.agent.FailureMessage(name, err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	if !s.requireTasks(w) {
		return
	}
	var req task.Request
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.tasks.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if !s.requireTasks(w) {
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	tasks, err := s.tasks.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireTasks(w) {
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.tasks.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTaskDetail(w http.ResponseWriter, r *http.Request) {
	if !s.requireTasks(w) {
		return
	}
	t, err := s.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) requireTasks(w http.ResponseWriter) bool {
	if s.tasks != nil {
		return true
	}
	writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "task queue is not configured"))
	return false
}

// listOptionsFromQuery 解析 status、tool、q、limit、offset、order 查询参数。
func listOptionsFromQuery(r *http.Request) ([]task.ListOption, error) {
	q := r.URL.Query()
	var opts []task.ListOption

	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		var statuses []task.Status
		for _, part := range strings.Split(raw, ",") {
			status := task.Status(strings.ToLower(strings.TrimSpace(part)))
			if status == "" {
				continue
			}
			if !task.IsValidStatus(status) {
				return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "invalid status: %s", part)
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	for key, apply := range map[string]func(int) task.ListOption{"limit": task.WithLimit, "offset": task.WithOffset} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "%s must be a non-negative integer", key)
		}
		opts = append(opts, apply(n))
	}
	if tool := q.Get("tool"); tool != "" {
		opts = append(opts, task.WithTool(tool))
	}
	if query := q.Get("q"); query != "" {
		opts = append(opts, task.WithQuery(query))
	}
	switch strings.ToLower(q.Get("order")) {
	case "", "desc":
	case "asc":
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "order must be asc or desc")
	}
	return opts, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid JSON body")
	}
	return nil
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func writeError(w http.ResponseWriter, err error) {
	writeErrorMessage(w, err, xerrors.MessageOf(err))
}

func writeErrorMessage(w http.ResponseWriter, err error, message string) {
	writeJSON(w, xerrors.HTTPStatusOf(err), map[string]errorBody{"error": {
		Code:      string(xerrors.CodeOf(err)),
		Message:   message,
		Retryable: xerrors.RetryableError(err),
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.ObserveHTTPRequest(name, r.Method, rec.status, time.Since(start))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
