package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"avif-converter-go/internal/batch"
	"avif-converter-go/internal/converter"
	"avif-converter-go/internal/logger"
	"avif-converter-go/internal/pool"
	"avif-converter-go/internal/report"
	"avif-converter-go/internal/statistics"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

type Server struct {
	conv       *batch.Converter
	fs         afero.Fs
	log        *logrus.Logger
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	currentRunID   string
	cancelRun      context.CancelFunc
	lastResult     *batch.Result
	runs           sync.WaitGroup
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type ConvertRequest struct {
	Directory string `json:"directory"`
	Overwrite bool   `json:"overwrite"`
}

type ConvertFileRequest struct {
	Path      string `json:"path"`
	Overwrite bool   `json:"overwrite"`
}

type DirectoryInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	IsDirectory  bool   `json:"is_directory"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(conv *batch.Converter, fs afero.Fs, log *logrus.Logger) *Server {
	s := &Server{
		conv:      conv,
		fs:        fs,
		log:       log,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/convert", s.handleConvert).Methods("POST")
	api.HandleFunc("/convert-file", s.handleConvertFile).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/directories", s.handleListDirectories).Methods("GET")
	api.HandleFunc("/statistics", s.handleGetStatistics).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the router, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // convert-file is synchronous
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop cancels any active run, waits for it to finish, and shuts the HTTP
// server down.
func (s *Server) Stop(ctx context.Context) error {
	s.operationMutex.Lock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.operationMutex.Unlock()

	var err error
	waited := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		err = multierr.Append(err, fmt.Errorf("waiting for active run: %w", ctx.Err()))
	}

	if s.httpServer != nil {
		err = multierr.Append(err, s.httpServer.Shutdown(ctx))
	}

	s.wsMutex.Lock()
	for conn := range s.wsClients {
		err = multierr.Append(err, conn.Close())
		delete(s.wsClients, conn)
	}
	s.wsMutex.Unlock()

	return err
}

// Wait blocks until every started run has finished.
func (s *Server) Wait() {
	s.runs.Wait()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	runID := s.currentRunID
	last := s.lastResult
	s.operationMutex.RUnlock()

	var summary interface{}
	if last != nil {
		summary = last.Summary
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":       running,
			"run_id":        runID,
			"target_format": s.conv.Unit().TargetFormat(),
			"workers":       s.conv.Workers(),
			"last_summary":  summary,
		},
	})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Directory == "" {
		s.writeError(w, "Directory is required", http.StatusBadRequest)
		return
	}

	// Check if directory exists
	if ok, err := afero.DirExists(s.fs, req.Directory); err != nil || !ok {
		s.writeError(w, "Directory does not exist", http.StatusBadRequest)
		return
	}

	// Check if already running
	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}
	runID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	s.isRunning = true
	s.currentRunID = runID
	s.cancelRun = cancel
	s.runs.Add(1)
	s.operationMutex.Unlock()

	go s.runConvertAsync(ctx, runID, req)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(APIResponse{
		Success: true,
		Message: "Conversion started",
		Data:    map[string]string{"run_id": runID},
	})
}

func (s *Server) handleConvertFile(w http.ResponseWriter, r *http.Request) {
	var req ConvertFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		s.writeError(w, "Path is required", http.StatusBadRequest)
		return
	}

	outcome := s.conv.ConvertFile(r.Context(), req.Path, req.Overwrite)
	data := map[string]interface{}{"outcome": report.EntryFor(outcome)}
	if outcome.Status == converter.StatusConverted {
		data["line"] = statistics.ReportLine(outcome)
	}

	s.writeJSON(w, APIResponse{
		Success: outcome.Status != converter.StatusFailed,
		Data:    data,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.Lock()
	running := s.isRunning
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.operationMutex.Unlock()

	if !running {
		s.writeJSON(w, APIResponse{
			Success: true,
			Message: "No operation in progress",
		})
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Operation stopped",
	})
}

func (s *Server) handleListDirectories(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "."
	}

	// Security check - prevent directory traversal
	path = filepath.Clean(path)
	if strings.Contains(path, "..") {
		s.writeError(w, "Invalid path", http.StatusBadRequest)
		return
	}

	entries, err := afero.ReadDir(s.fs, path)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to read directory: %v", err), http.StatusInternalServerError)
		return
	}

	directories := make([]DirectoryInfo, 0, len(entries))
	for _, info := range entries {
		directories = append(directories, DirectoryInfo{
			Path:         filepath.Join(path, info.Name()),
			Name:         info.Name(),
			IsDirectory:  info.IsDir(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format(time.RFC3339),
		})
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    directories,
	})
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	last := s.lastResult
	s.operationMutex.RUnlock()

	if last == nil {
		s.writeJSON(w, APIResponse{
			Success: true,
			Data:    nil,
		})
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"report":    report.FromResult(last),
			"breakdown": statistics.Breakdown(last.Outcomes),
			"text":      last.Summary.String(),
		},
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	// Remove client on disconnect
	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (s *Server) runConvertAsync(ctx context.Context, runID string, req ConvertRequest) {
	defer s.runs.Done()
	log := logger.WithRun(s.log, runID)

	s.broadcastWSMessage("batch_started", map[string]interface{}{
		"run_id":    runID,
		"directory": req.Directory,
		"overwrite": req.Overwrite,
	})

	observer := func(e pool.Event) {
		s.broadcastWSMessage("file_completed", map[string]interface{}{
			"run_id":  runID,
			"done":    e.Done,
			"total":   e.Total,
			"outcome": report.EntryFor(e.Outcome),
		})
	}

	res, err := s.conv.ConvertDirectoryWithID(ctx, runID, req.Directory, req.Overwrite, observer)
	stopped := ctx.Err() != nil

	s.operationMutex.Lock()
	s.isRunning = false
	s.currentRunID = ""
	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}
	if err == nil {
		s.lastResult = res
	}
	s.operationMutex.Unlock()

	switch {
	case err != nil:
		log.WithError(err).Error("Batch conversion failed")
		s.broadcastWSMessage("batch_error", map[string]interface{}{
			"run_id": runID,
			"error":  err.Error(),
		})
	case stopped:
		log.Info("Batch conversion stopped by user")
		s.broadcastWSMessage("batch_stopped", map[string]interface{}{
			"run_id":  runID,
			"summary": res.Summary,
		})
	default:
		s.broadcastWSMessage("batch_completed", map[string]interface{}{
			"run_id":  runID,
			"summary": res.Summary,
			"lines":   res.Lines,
			"notices": res.Notices,
		})
	}
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// Exclusive lock: a connection supports one concurrent writer.
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
