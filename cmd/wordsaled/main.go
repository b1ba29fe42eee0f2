package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"wordsale/config"
	"wordsale/core/events"
	"wordsale/native/wordsale"
	"wordsale/observability/logging"
	"wordsale/rpc"
	"wordsale/state"
	"wordsale/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	listenFlag := flag.String("listen", "", "Listen address for the JSON-RPC server (overrides the config file)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("WORDSALE_ENV"))
	logger := logging.Setup("wordsaled", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if *listenFlag != "" {
		cfg.RPCAddress = *listenFlag
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	feed := events.NewMemoryEmitter(1024)

	engine := wordsale.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(feed)

	sales, err := manager.ListSales()
	if err != nil {
		logger.Error("Failed to scan sale records", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("sale engine ready",
		slog.Int("sales", len(sales)),
		slog.String("data_dir", cfg.DataDir),
	)

	server := rpc.NewServer(engine, manager, feed, cfg, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
