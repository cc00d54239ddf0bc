package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mylxsw/asteria/level"
	"github.com/mylxsw/asteria/log"

	"github.com/uniagent/gateway/internal/config"
	"github.com/uniagent/gateway/internal/httpapi"
	"github.com/uniagent/gateway/pkg/agent"
	"github.com/uniagent/gateway/pkg/upload"
	"github.com/uniagent/gateway/pkg/workspace"
)

func main() {
	addr := flag.String("addr", "", "Server address (overrides HOST/PORT)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	log.DefaultLogLevel(level.GetLevelByName(cfg.LogLevel))

	listen := cfg.Addr()
	if *addr != "" {
		listen = *addr
	}

	registry := agent.NewRegistry()
	runner := agent.NewRunner(agent.Config{
		CLIPath:           cfg.AgentCLIPath,
		MCPConfigPath:     cfg.MCPConfigPath,
		UsePTY:            cfg.UsePTY,
		TotalTimeout:      cfg.TotalTimeout,
		InactivityTimeout: cfg.InactivityTimeout,
		KillTimeout:       cfg.KillTimeout,
	}, registry)

	handler := httpapi.NewHandler(
		runner,
		workspace.NewManager(cfg.WorkspaceBase),
		upload.NewStore(cfg.WorkspaceBase),
		registry,
		cfg.AgentCLIPath,
	)
	router := httpapi.NewRouter(handler, cfg.ValidAPIKeys())

	server := &http.Server{Addr: listen, Handler: router}

	go func() {
		log.Infof("Starting server on %s", listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.KillTimeout+5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warningf("server shutdown: %v", err)
	}
	registry.ShutdownAll()
	log.Info("Server stopped")
}
