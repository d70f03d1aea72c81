// Package server exposes the operator HTTP surface: trigger and preview
// syncs, inspect the destination collection, and read run history.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oakline/job-sync-service/internal/config"
	"github.com/oakline/job-sync-service/internal/feed"
	"github.com/oakline/job-sync-service/internal/models"
	"github.com/oakline/job-sync-service/internal/storage"
	syncengine "github.com/oakline/job-sync-service/internal/sync"
	"github.com/oakline/job-sync-service/internal/webflow"
)

// Server handles HTTP requests
type Server struct {
	cfg    config.ServerConfig
	webCfg config.WebflowConfig
	runner *syncengine.Runner
	store  syncengine.Store
	runs   storage.RunStore
	server *http.Server
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, webCfg config.WebflowConfig,
	runner *syncengine.Runner, store syncengine.Store, runs storage.RunStore) *Server {

	s := &Server{
		cfg:    cfg,
		webCfg: webCfg,
		runner: runner,
		store:  store,
		runs:   runs,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/sync", s.handleSync)
	mux.HandleFunc("/api/collection", s.handleCollection)
	mux.HandleFunc("/api/locations", s.handleLocations)
	mux.HandleFunc("/api/verify", s.handleVerify)
	mux.HandleFunc("/api/items/", s.handleItemUpdate)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/status", s.handleStatus)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
		// Syncs run inside the request, so the write timeout has to cover a
		// full reconciliation, not just response serialization.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSync triggers a sync (POST) or previews one (GET). A feed outage is
// an expected condition reported as a successful request with success=false;
// anything else is a server error.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.runSync(w, r)
	case http.MethodGet:
		s.previewSync(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) runSync(w http.ResponseWriter, r *http.Request) {
	run, err := s.runner.Execute(r.Context(), models.TriggerManual)
	if err != nil {
		var outage *feed.OutageError
		if errors.As(err, &outage) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": false,
				"runId":   run.ID,
				"error":   outage.Message,
				"details": outage.Detail,
			})
			return
		}
		http.Error(w, fmt.Sprintf("Sync failed: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"runId":   run.ID,
		"message": fmt.Sprintf("Successfully synced %d jobs to Webflow", run.Summary.Synced),
		"summary": run.Summary,
	})
}

func (s *Server) previewSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.runner.Engine().Preview(r.Context())
	if err != nil {
		var outage *feed.OutageError
		if errors.As(err, &outage) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": false,
				"error":   outage.Message,
				"details": outage.Detail,
			})
			return
		}
		http.Error(w, fmt.Sprintf("Preview failed: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"preview": result,
	})
}

// handleCollection returns the destination collection schema plus what the
// sync engine makes of it (valid keys, detected location field).
func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	collection, err := s.store.GetCollection(r.Context(), s.webCfg.CollectionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve collection: %v", err), http.StatusInternalServerError)
		return
	}

	items, err := s.store.ListItems(r.Context(), s.webCfg.CollectionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list items: %v", err), http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []models.Item{}
	}

	response := map[string]interface{}{
		"collection": collection,
		"items":      items,
		"itemCount":  len(items),
	}
	if schema, err := syncengine.Inspect(r.Context(), s.store, s.webCfg.CollectionID); err == nil {
		response["validKeys"] = schema.ValidKeys
		response["locationField"] = schema.LocationFieldSlug
		response["locationFieldIsReference"] = schema.LocationFieldIsReference
	}
	writeJSON(w, http.StatusOK, response)
}

// handleLocations returns the raw location items plus the code-to-id mapping
// the sync would resolve against.
func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	items := []models.Item{}
	if s.webCfg.LocationCollectionID != "" {
		listed, err := s.store.ListItems(r.Context(), s.webCfg.LocationCollectionID)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to list locations: %v", err), http.StatusInternalServerError)
			return
		}
		items = listed
	}

	locations := syncengine.NewResolver(s.store, s.webCfg.LocationCollectionID).Build(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"collectionId": s.webCfg.LocationCollectionID,
		"count":        len(locations),
		"items":        items,
		"locations":    locations,
	})
}

// handleVerify reports the publish state of every item in the destination
// collection, so operators can check what a sweep actually did.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	items, err := s.store.ListItems(r.Context(), s.webCfg.CollectionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list items: %v", err), http.StatusInternalServerError)
		return
	}

	var live, draft, archived int
	details := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		switch {
		case item.IsArchived:
			archived++
		case item.IsDraft:
			draft++
		default:
			live++
		}
		details = append(details, map[string]interface{}{
			"id":         item.ID,
			"name":       item.Name(),
			"isDraft":    item.IsDraft,
			"isArchived": item.IsArchived,
		})
	}

	response := map[string]interface{}{
		"total":    len(items),
		"live":     live,
		"draft":    draft,
		"archived": archived,
		"items":    details,
	}
	if collection, err := s.store.GetCollection(r.Context(), s.webCfg.CollectionID); err == nil {
		response["fields"] = collection.Fields
	}
	writeJSON(w, http.StatusOK, response)
}

// itemUpdateRequest is the body for PATCH /api/items/{id}.
type itemUpdateRequest struct {
	FieldData models.FieldSet `json:"fieldData"`
}

// handleItemUpdate applies a field patch to one item and republishes it live,
// so manual edits show up on the site immediately instead of sitting staged.
func (s *Server) handleItemUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	itemID := strings.TrimPrefix(r.URL.Path, "/api/items/")
	if itemID == "" || strings.Contains(itemID, "/") {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	var req itemUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.FieldData) == 0 {
		http.Error(w, "fieldData is required", http.StatusBadRequest)
		return
	}

	patch := webflow.ItemPatch{
		FieldData: req.FieldData,
		IsDraft:   webflow.Bool(false),
	}
	item, err := s.store.UpdateItemLive(r.Context(), s.webCfg.CollectionID, itemID, patch)
	if err != nil {
		var apiErr *webflow.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			http.Error(w, "Item not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to update item: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"item":    item,
	})
}

// handleRuns returns recent run history, newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve runs: %v", err), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []models.SyncRun{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleStatus reports the outcome of the most recent run.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	last, err := s.runs.LastRun(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve status: %v", err), http.StatusInternalServerError)
		return
	}
	if last == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "idle",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  last.Status,
		"lastRun": last,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
