package server

import (
	"net/http"

	"mark/internal/gateway/handler"
	"mark/internal/gateway/middleware"
)

func NewMux(runHandler *handler.RunHandler, progressHandler *handler.ProgressHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/runs", runHandler.HandleRuns)
	mux.HandleFunc("/api/runs/", runHandler.HandleRun)
	mux.HandleFunc("/ws/runs", progressHandler.HandleProgressWS)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return middleware.CORS(mux)
}
