// Command shelfscan-stub serves an in-memory implementation of the ShelfScan
// API for local development and demos.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/config"
	"github.com/shelfscan/shelfscan/internal/logger"
	"github.com/shelfscan/shelfscan/internal/stubserver"
)

func main() {
	var (
		addr       string
		configPath string
	)
	flag.StringVar(&addr, "a", "", "listen address (overrides config)")
	flag.StringVar(&configPath, "c", "", "path to JSON config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.ListenAddr = addr
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	srv := stubserver.New(stubserver.NewStore(), log)
	log.Info("stub server listening", zap.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, srv.Router()); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
