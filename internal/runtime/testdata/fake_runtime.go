package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
)

// A stand-in runtime: it "loads" any manifest that exists on disk and
// answers generate calls by appending token 7 to every row.
func main() {
	var manifest, dtype, modelType, host, port string
	var tp int
	flag.StringVar(&manifest, "manifest", "", "manifest path")
	flag.StringVar(&dtype, "dtype", "fp16", "dtype")
	flag.StringVar(&modelType, "model-type", "", "model type")
	flag.StringVar(&host, "host", "127.0.0.1", "host")
	flag.StringVar(&port, "port", "0", "port")
	flag.IntVar(&tp, "tensor-parallel", 1, "tp size")
	flag.Parse()

	var loaded atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/load", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Manifest string `json:"manifest"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, err := os.Stat(req.Manifest); err != nil {
			http.Error(w, "manifest: "+err.Error(), http.StatusBadRequest)
			return
		}
		loaded.Store(true)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		if !loaded.Load() {
			http.Error(w, "weights not loaded", http.StatusConflict)
			return
		}
		var req struct {
			InputIDs     [][]int `json:"input_ids"`
			MaxNewTokens int     `json:"max_new_tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.MaxNewTokens < 0 {
			http.Error(w, "max_new_tokens must be >= 0", http.StatusBadRequest)
			return
		}
		out := make([][]int, len(req.InputIDs))
		for i, row := range req.InputIDs {
			out[i] = append([]int{}, row...)
			for j := 0; j < req.MaxNewTokens; j++ {
				out[i] = append(out[i], 7)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sequences": out})
	})

	srv := &http.Server{Addr: fmt.Sprintf("%s:%s", host, port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
