package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/liamcoop/policies/execution"
	"github.com/liamcoop/policies/internal/config"
	"github.com/liamcoop/policies/internal/logger"
	"github.com/liamcoop/policies/internal/metrics"
	"github.com/liamcoop/policies/permissions"
	"github.com/liamcoop/policies/rules"
	"github.com/liamcoop/policies/versions"
)

type Server struct {
	db       *sql.DB
	store    versions.Store
	manager  *versions.Manager
	executor *execution.Service
	metrics  *metrics.Metrics
	validate *validator.Validate
	cfg      *config.Config
	router   *chi.Mux
}

// NewServer wires the stores, lifecycle manager and execution service from
// cfg. db may be nil, in which case everything is kept in memory.
func NewServer(cfg *config.Config, db *sql.DB) (*Server, error) {
	var store versions.Store
	var sink execution.LogSink
	if db != nil {
		store = versions.NewPostgresStore(db)
	} else {
		store = versions.NewInMemoryStore()
	}

	switch cfg.Execution.LogSink {
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres log sink requires a database")
		}
		sink = execution.NewPostgresLogSink(db)
	case "memory":
		sink = execution.NewMemoryLogSink(10000)
	}

	perms, err := buildPermissions(cfg.Permissions)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}

	manager, err := versions.NewManager(store, perms,
		versions.WithMetrics(m),
		versions.WithLogger(logger.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create version manager: %w", err)
	}

	opts := []execution.Option{
		execution.WithMetrics(m),
		execution.WithLogger(logger.Logger),
		execution.WithDecisionOptions(decisionOptions(cfg.Evaluation)),
		execution.WithCache(execution.NewInMemoryRulesetCache(execution.CacheConfig{
			TTL:        cfg.Evaluation.CacheTTL,
			MaxEntries: cfg.Evaluation.CacheSize,
		})),
	}
	if sink != nil {
		opts = append(opts, execution.WithLogSink(sink))
	}
	executor, err := execution.NewService(store, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution service: %w", err)
	}

	s := &Server{
		db:       db,
		store:    store,
		manager:  manager,
		executor: executor,
		metrics:  m,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cfg:      cfg,
	}
	s.setupRoutes()

	return s, nil
}

// buildPermissions combines the static approver list with the CEL expression, if any
func buildPermissions(cfg config.PermissionsConfig) (versions.PermissionChecker, error) {
	var chain permissions.AnyOf
	if len(cfg.Approvers) > 0 {
		chain = append(chain, permissions.NewStaticChecker(cfg.Approvers...))
	}
	if cfg.Expression != "" {
		checker, err := permissions.NewExpressionChecker(cfg.Expression, permissions.StaticRoles(cfg.Roles))
		if err != nil {
			return nil, fmt.Errorf("invalid approval expression: %w", err)
		}
		logger.Info("approval expression enabled", "expression", checker.Expression())
		chain = append(chain, checker)
	}
	if len(chain) == 0 {
		logger.Warn("no approvers configured, approvals will be refused")
		return permissions.DenyAll{}, nil
	}
	return chain, nil
}

func decisionOptions(cfg config.EvaluationConfig) rules.DecisionOptions {
	return rules.DecisionOptions{
		DefaultVerdict: rules.Action(cfg.DefaultVerdict),
		TieBreak:       rules.DenyTieBreak(cfg.DenyTieBreak),
	}
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	r.Get("/api/v1/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, s.cfg.Metrics.Path, s.metrics.Handler())
	}

	r.Post("/api/v1/rules/parse", s.handleParse)
	r.Post("/api/v1/rules/evaluate", s.handleEvaluate)

	r.Route("/api/v1/policies", func(r chi.Router) {
		r.Post("/", s.handleCreatePolicy)

		r.Route("/{policyId}", func(r chi.Router) {
			r.Post("/execute", s.handleExecute)

			r.Post("/versions", s.handleCreateVersion)
			r.Get("/versions", s.handleListVersions)

			r.Route("/versions/{version}", func(r chi.Router) {
				r.Get("/", s.handleGetVersion)
				r.Get("/audit", s.handleAudit)
				r.Post("/submit", s.handleTransition(versions.OpSubmitForApproval))
				r.Post("/approve", s.handleTransition(versions.OpApprove))
				r.Post("/reject", s.handleTransition(versions.OpReject))
				r.Post("/deprecate", s.handleTransition(versions.OpDeprecate))
				r.Post("/archive", s.handleTransition(versions.OpArchive))
				r.Post("/default", s.handleTransition(versions.OpSetDefault))
			})
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs each request and feeds the HTTP error counters
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		switch {
		case status >= 500:
			logger.ErrorHttp5xx()
		case status >= 400:
			logger.WarnHttp4xx(status)
		}

		logger.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Store: "memory", Counters: logger.Snapshot()}

	if s.db != nil {
		resp.Store = "postgres"
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if !s.decode(w, r, &req) {
		return
	}

	parsed, err := rules.ParseRules(req.Source)
	if err != nil {
		s.metrics.ParseFailed()
		respondServiceError(w, err)
		return
	}
	if parsed == nil {
		parsed = []rules.Rule{}
	}

	respondJSON(w, http.StatusOK, ParseResponse{Rules: parsed})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !s.decode(w, r, &req) {
		return
	}

	parsed, err := rules.ParseRules(req.Source)
	if err != nil {
		s.metrics.ParseFailed()
		respondServiceError(w, err)
		return
	}

	opts := decisionOptions(s.cfg.Evaluation)
	if req.DefaultVerdict != "" {
		opts.DefaultVerdict = rules.Action(req.DefaultVerdict)
	}
	if req.TieBreak != "" {
		opts.TieBreak = rules.DenyTieBreak(req.TieBreak)
	}

	decision, results := rules.Evaluate(parsed, req.Input, opts)
	if results == nil {
		results = []rules.EvaluationResult{}
	}

	respondJSON(w, http.StatusOK, EvaluateResponse{Decision: decision, Results: results})
}

func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req CreatePolicyRequest
	if !s.decode(w, r, &req) {
		return
	}

	policy := &versions.Policy{ID: req.ID, Name: req.Name, DenyByDefault: req.DenyByDefault}
	if err := s.manager.CreatePolicy(r.Context(), policy); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, policy)
}

func (s *Server) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	policyID := chi.URLParam(r, "policyId")

	var req CreateVersionRequest
	if !s.decode(w, r, &req) {
		return
	}

	v, err := s.manager.CreateDraft(r.Context(), policyID, req.Content, req.ActorID, req.Comment)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, v)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	list, err := s.manager.ListVersions(r.Context(), chi.URLParam(r, "policyId"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if list == nil {
		list = []*versions.PolicyVersion{}
	}

	respondJSON(w, http.StatusOK, VersionsListResponse{Versions: list})
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	policyID := chi.URLParam(r, "policyId")
	version, ok := versionParam(w, r)
	if !ok {
		return
	}

	v, err := s.manager.GetVersionDetail(r.Context(), policyID, version)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if v == nil {
		respondError(w, http.StatusNotFound, "policy version not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, v)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	policyID := chi.URLParam(r, "policyId")
	version, ok := versionParam(w, r)
	if !ok {
		return
	}

	entries, err := s.manager.AuditTrail(r.Context(), policyID, version)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []*versions.AuditEntry{}
	}

	respondJSON(w, http.StatusOK, AuditResponse{Entries: entries})
}

// handleTransition returns the handler for one lifecycle operation. The
// response is the version as it is after the operation.
func (s *Server) handleTransition(op versions.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		policyID := chi.URLParam(r, "policyId")
		version, ok := versionParam(w, r)
		if !ok {
			return
		}

		var req TransitionRequest
		if !s.decode(w, r, &req) {
			return
		}

		ctx := r.Context()
		var err error
		switch op {
		case versions.OpSubmitForApproval:
			err = s.manager.SubmitForApproval(ctx, policyID, version, req.ActorID, req.Comment)
		case versions.OpApprove:
			err = s.manager.ApproveVersion(ctx, policyID, version, req.ActorID, versions.DecisionApproved, req.Comment)
		case versions.OpReject:
			err = s.manager.ApproveVersion(ctx, policyID, version, req.ActorID, versions.DecisionRejected, req.Comment)
		case versions.OpDeprecate:
			err = s.manager.DeprecateVersion(ctx, policyID, version, req.ActorID, req.Comment)
		case versions.OpArchive:
			err = s.manager.ArchiveVersion(ctx, policyID, version, req.ActorID, req.Comment)
		case versions.OpSetDefault:
			err = s.manager.SetDefaultVersion(ctx, policyID, version, req.ActorID, req.Comment)
		}
		if err != nil {
			respondServiceError(w, err)
			return
		}

		// A new default or a retired one changes what executions see
		s.executor.InvalidatePolicy(policyID)

		v, err := s.manager.GetVersionDetail(ctx, policyID, version)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, v)
	}
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	policyID := chi.URLParam(r, "policyId")

	var req ExecuteRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.executor.Execute(r.Context(), policyID, req.Input)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// decode reads and validates a JSON body, writing a 400 on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Fields: fields})
			return false
		}
		respondError(w, http.StatusBadRequest, "validation failed", err)
		return false
	}
	return true
}

func versionParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "version")
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid version %q", raw), nil)
		return 0, false
	}
	return v, true
}

// respondServiceError maps domain errors to status codes
func respondServiceError(w http.ResponseWriter, err error) {
	var (
		syntaxErr   *rules.SyntaxError
		invalidErr  *versions.InvalidTransitionError
		conflictErr *versions.ConflictError
		permErr     *versions.PermissionDeniedError
	)

	switch {
	case errors.As(err, &syntaxErr):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:    "syntax error",
			Details:  syntaxErr.Error(),
			Line:     syntaxErr.Line,
			Column:   syntaxErr.Column,
			Fragment: syntaxErr.Fragment,
		})
	case errors.As(err, &invalidErr):
		respondError(w, http.StatusConflict, "invalid transition", err)
	case errors.As(err, &conflictErr):
		respondError(w, http.StatusConflict, "concurrent modification", err)
	case errors.As(err, &permErr):
		respondError(w, http.StatusForbidden, "permission denied", err)
	case errors.Is(err, versions.ErrPolicyExists):
		respondError(w, http.StatusConflict, "policy already exists", err)
	case errors.Is(err, versions.ErrPolicyNotFound),
		errors.Is(err, versions.ErrVersionNotFound):
		respondError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, execution.ErrNoActivePolicyVersion):
		respondError(w, http.StatusNotFound, "no active policy version", err)
	case errors.Is(err, versions.ErrOverrideReasonRequired),
		errors.Is(err, versions.ErrInvalidDecision):
		respondError(w, http.StatusBadRequest, "invalid request", err)
	default:
		logger.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}
