package main

import (
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"streamIngest/config"
	"streamIngest/core"
	"streamIngest/ingest"
	"streamIngest/storage"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <input video file>", os.Args[0])
	}
	inputFile := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if err := os.MkdirAll(core.DataRoot(), 0755); err != nil {
		log.Fatalf("failed to create data dir: %v", err)
	}

	store, err := storage.InitObjectStore(core.DataRoot())
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}
	index := storage.InitIndex()

	orchestrator := ingest.NewOrchestrator(cfg, store, index)

	if port := os.Getenv("PORT"); port != "" {
		go serveMonitor(":"+port, orchestrator, index)
	}

	log.Printf("Starting stream ingest...")
	if err := orchestrator.Run(inputFile); err != nil {
		log.Printf("Error: %v", err)
		return
	}
	log.Printf("Session complete")
}

func serveMonitor(addr string, orchestrator *ingest.Orchestrator, index storage.TranscriptIndex) {
	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/status", statusHandler(orchestrator))
	http.HandleFunc("/query", queryHandler(orchestrator, index))
	log.Printf("Monitor listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Printf("Monitor server stopped: %v", err)
	}
}
