package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"streamIngest/core"
	"streamIngest/ingest"
	"streamIngest/storage"
)

func healthHandler(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func statusHandler(orchestrator *ingest.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		core.WriteJSON(w, http.StatusOK, orchestrator.Status())
	}
}

func queryHandler(orchestrator *ingest.Orchestrator, index storage.TranscriptIndex) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		var req core.QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "query required"})
			return
		}
		if req.SessionID == "" {
			req.SessionID = orchestrator.Status().SessionID
		}
		hits := index.Search(req.SessionID, req.Query, req.TopK)
		core.WriteJSON(w, http.StatusOK, core.QueryResponse{SessionID: req.SessionID, Query: req.Query, Hits: hits})
	}
}
