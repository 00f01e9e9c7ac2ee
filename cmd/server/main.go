package main

import (
	"net/http"

	"github.com/quill-labs/quill/internal/api"
	"github.com/quill-labs/quill/internal/config"
	"github.com/quill-labs/quill/internal/gateway"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	gw := gateway.NewClient(cfg.GatewayURL, logger)
	handler := api.NewHandler(gw, cfg, logger)

	http.HandleFunc("/api/ai", handler.HandleChat)
	http.HandleFunc("/api/title", handler.HandleTitle)
	http.HandleFunc("/api/models", handler.HandleModels)
	http.HandleFunc("/api/status", handler.HandleStatus)

	// Serve static files
	fs := http.FileServer(http.Dir(cfg.StaticDir))
	http.Handle("/", fs)

	logger.Info("Starting server",
		zap.String("listen", cfg.Listen),
		zap.String("gateway", cfg.GatewayURL))
	if err := http.ListenAndServe(cfg.Listen, nil); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
