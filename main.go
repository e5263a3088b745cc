package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/trackvision/tv-shared-go/logger"
	"go.uber.org/zap"

	"github.com/trackvision/tv-epcis-validator/configs"
	"github.com/trackvision/tv-epcis-validator/epcis"
	"github.com/trackvision/tv-epcis-validator/migrations"
	"github.com/trackvision/tv-epcis-validator/pipelines"
	"github.com/trackvision/tv-epcis-validator/pipelines/remediation"
	"github.com/trackvision/tv-epcis-validator/pipelines/revalidation"
	"github.com/trackvision/tv-epcis-validator/tasks"
	"github.com/trackvision/tv-epcis-validator/types"
)

// PipelineFunc is the signature all pipelines must implement
type PipelineFunc func(ctx context.Context, cfg *configs.Config, db *sqlx.DB, id string) error

// pipelineSteps maps pipeline names to their step names (for API discovery)
var pipelineSteps = map[string][]string{
	"revalidation": revalidation.Steps,
	"remediation":  remediation.Steps,
}

// API response types
type jobListResponse struct {
	Jobs []string `json:"jobs"`
}

type jobInfoResponse struct {
	Name     string   `json:"name"`
	Tasks    []string `json:"tasks"`
	Schedule string   `json:"schedule"`
}

type runRequest struct {
	ID        string   `json:"id"`
	SkipSteps []string `json:"skip_steps"`
}

type runResponse struct {
	Success  bool   `json:"success"`
	Pipeline string `json:"pipeline"`
	ID       string `json:"id"`
	Error    string `json:"error,omitempty"`
}

type validateResponse struct {
	Report  *types.ValidationReport `json:"report"`
	Summary types.ErrorSummary      `json:"summary"`
}

type resolveRequest struct {
	ResolutionNote string `json:"resolution_note"`
	ResolvedBy     string `json:"resolved_by"`
}

type resolveResponse struct {
	ErrorID string `json:"error_id"`
	Status  string `json:"status"`
}

// authMiddleware checks for valid API key in Authorization header or X-API-Key header
func authMiddleware(apiKey string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// If no API key configured, skip auth
		if apiKey == "" {
			next(w, r)
			return
		}

		// Check Authorization: Bearer <key>
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == apiKey {
				next(w, r)
				return
			}
		}

		// Check X-API-Key header
		if r.Header.Get("X-API-Key") == apiKey {
			next(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}
}

func main() {
	// Load configuration
	cfg, err := configs.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	db, err := tasks.ConnectDB(cfg)
	if err != nil {
		logger.Fatal("Database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := migrations.Up(db); err != nil {
		logger.Fatal("Schema migration failed", zap.Error(err))
	}

	storage, err := tasks.NewStorageHandler(cfg)
	if err != nil {
		logger.Fatal("Storage initialization failed", zap.Error(err))
	}
	service := tasks.NewSubmissionService(db, storage)

	// Pipelines triggered via POST /run/{name}
	pipelineRegistry := map[string]PipelineFunc{
		"revalidation": func(ctx context.Context, cfg *configs.Config, db *sqlx.DB, id string) error {
			return revalidation.Run(ctx, cfg, db, id)
		},
		"remediation": func(ctx context.Context, cfg *configs.Config, db *sqlx.DB, id string) error {
			mailer, err := tasks.NewGmailService(ctx, cfg)
			if err != nil {
				return err
			}
			return remediation.Run(ctx, cfg, db, mailer, id)
		},
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Supplier drop directories feed the same submission service as the API
	if cfg.WatchDir != "" {
		watcher := tasks.NewFileWatcher(cfg, db, service)
		go func() {
			if err := watcher.Run(rootCtx); err != nil && rootCtx.Err() == nil {
				logger.Error("File watcher stopped", zap.Error(err))
			}
		}()
	}

	mux := http.NewServeMux()

	// Health check (no auth required)
	mux.HandleFunc("/health", healthHandler)

	// API endpoints (auth required)
	mux.HandleFunc("/validate", authMiddleware(cfg.APIKey, validateHandler))
	mux.HandleFunc("/submissions", authMiddleware(cfg.APIKey, makeSubmitHandler(service)))
	mux.HandleFunc("/submissions/", authMiddleware(cfg.APIKey, makeSubmissionHandler(service)))
	mux.HandleFunc("/errors/", authMiddleware(cfg.APIKey, makeResolveHandler(db)))
	mux.HandleFunc("/jobs", authMiddleware(cfg.APIKey, jobsHandler))
	mux.HandleFunc("/jobs/", authMiddleware(cfg.APIKey, jobInfoHandler))
	mux.HandleFunc("/run/", authMiddleware(cfg.APIKey, makeRunHandler(cfg, db, pipelineRegistry)))
	mux.HandleFunc("/runs", authMiddleware(cfg.APIKey, makeRunsHandler(cfg)))

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		<-rootCtx.Done()
		logger.Info("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}
		close(done)
	}()

	logger.Info("Starting EPCIS validation service",
		zap.String("port", port),
		zap.Strings("pipelines", pipelineNames(pipelineRegistry)),
		zap.String("watch_dir", cfg.WatchDir),
		zap.Bool("auth_enabled", cfg.APIKey != ""))

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("Server failed", zap.Error(err))
	}
	<-done
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// validateHandler validates a raw EPCIS document without storing it
// (POST /validate). The body is the document; format comes from the
// Content-Type header or a ?format= override.
func validateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64<<20))
	if err != nil {
		respondError(w, "reading request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(content) == 0 {
		respondError(w, "empty document", http.StatusBadRequest)
		return
	}

	isXML := true
	switch r.URL.Query().Get("format") {
	case "json":
		isXML = false
	case "xml", "":
		if strings.Contains(r.Header.Get("Content-Type"), "json") {
			isXML = false
		}
	default:
		respondError(w, "format must be xml or json", http.StatusBadRequest)
		return
	}

	validator := epcis.NewDocumentValidator()
	report := validator.ValidateDocument(content, isXML)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(validateResponse{
		Report:  report,
		Summary: epcis.SummarizeErrors(report),
	})
}

// makeSubmitHandler accepts a multipart file upload (POST /submissions).
func makeSubmitHandler(service *tasks.SubmissionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := r.ParseMultipartForm(64 << 20); err != nil {
			respondError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}

		supplierID := r.FormValue("supplier_id")
		if supplierID == "" {
			respondError(w, "supplier_id required", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			respondError(w, "file required", http.StatusBadRequest)
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			respondError(w, "reading upload: "+err.Error(), http.StatusBadRequest)
			return
		}

		result, err := service.ProcessSubmission(r.Context(), content,
			header.Filename, supplierID, r.FormValue("submitter_id"))
		if err != nil {
			logger.Error("Submission processing failed", zap.Error(err))
			respondError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	}
}

// makeSubmissionHandler fetches a submission with its findings
// (GET /submissions/{id}).
func makeSubmissionHandler(service *tasks.SubmissionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		id := strings.TrimPrefix(r.URL.Path, "/submissions/")
		if id == "" {
			respondError(w, "submission id required", http.StatusBadRequest)
			return
		}

		detail, err := service.GetSubmissionDetail(r.Context(), id)
		if err != nil {
			respondError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if detail == nil {
			respondError(w, "submission not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(detail)
	}
}

// makeResolveHandler marks a stored finding resolved
// (POST /errors/{id}/resolve). Resolving the last critical error moves the
// submission from held to reprocessed.
func makeResolveHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/errors/")
		errorID := strings.TrimSuffix(path, "/resolve")
		if errorID == "" || errorID == path {
			respondError(w, "expected /errors/{id}/resolve", http.StatusBadRequest)
			return
		}

		var req resolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		status, err := tasks.ResolveError(r.Context(), db, errorID, req.ResolutionNote, req.ResolvedBy)
		if err != nil {
			respondError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resolveResponse{ErrorID: errorID, Status: status})
	}
}

// jobsHandler returns list of all pipeline names (GET /jobs)
func jobsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	names := make([]string, 0, len(pipelineSteps))
	for name := range pipelineSteps {
		names = append(names, name)
	}
	sort.Strings(names)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jobListResponse{Jobs: names})
}

// jobInfoHandler returns pipeline details (GET /jobs/{name})
func jobInfoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if name == "" {
		http.Error(w, "pipeline name required", http.StatusBadRequest)
		return
	}

	steps, ok := pipelineSteps[name]
	if !ok {
		http.Error(w, "unknown pipeline: "+name, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jobInfoResponse{
		Name:     name,
		Tasks:    steps,
		Schedule: "@manual",
	})
}

func makeRunHandler(cfg *configs.Config, db *sqlx.DB, registry map[string]PipelineFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Extract pipeline name from URL: /run/{name}
		name := strings.TrimPrefix(r.URL.Path, "/run/")
		if name == "" {
			respondError(w, "pipeline name required", http.StatusBadRequest)
			return
		}

		pipelineFn, ok := registry[name]
		if !ok {
			respondError(w, "unknown pipeline: "+name, http.StatusNotFound)
			return
		}

		var req runRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
			respondError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.ID == "" {
			req.ID = fmt.Sprintf("ID-%s", time.Now().Format("020106150405"))
		}

		// Build context with skip steps
		ctx := r.Context()
		if len(req.SkipSteps) > 0 {
			ctx = context.WithValue(ctx, pipelines.SkipStepsKey, req.SkipSteps)
		}

		// Run pipeline
		logger.Info("Starting pipeline execution",
			zap.String("pipeline", name),
			zap.String("id", req.ID),
			zap.Strings("skip_steps", req.SkipSteps))

		if err := pipelineFn(ctx, cfg, db, req.ID); err != nil {
			logger.Error("Pipeline failed",
				zap.String("pipeline", name),
				zap.String("id", req.ID),
				zap.Error(err))
			respondError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		logger.Info("Pipeline completed",
			zap.String("pipeline", name),
			zap.String("id", req.ID))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(runResponse{Success: true, Pipeline: name, ID: req.ID})
	}
}

// makeRunsHandler reconstructs recent pipeline runs from Cloud Logging
// (GET /runs?since_hours=N).
func makeRunsHandler(cfg *configs.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if cfg.GCPProjectID == "" {
			respondError(w, "run history requires GCP_PROJECT_ID", http.StatusNotImplemented)
			return
		}

		since := 24 * time.Hour
		if raw := r.URL.Query().Get("since_hours"); raw != "" {
			hours, err := strconv.Atoi(raw)
			if err != nil || hours <= 0 {
				respondError(w, "since_hours must be a positive integer", http.StatusBadRequest)
				return
			}
			since = time.Duration(hours) * time.Hour
		}

		entries, err := tasks.FetchLogs(r.Context(), cfg.GCPProjectID, cfg.CloudRunService, since)
		if err != nil {
			respondError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		runs := tasks.GroupByRun(entries, cfg.GCPProjectID, cfg.CloudRunService)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"runs": runs})
	}
}

func respondError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(runResponse{Success: false, Error: msg})
}

func pipelineNames(registry map[string]PipelineFunc) []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
