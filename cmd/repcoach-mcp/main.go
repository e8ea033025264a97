package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/config"
	repmcp "github.com/claude/repcoach/internal/mcp"
	"github.com/claude/repcoach/internal/storage"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (local database mode)")
	remote := flag.String("remote", "", "RepCoach server URL (remote mode, e.g. http://repcoach.tail1234.ts.net)")
	apiKey := flag.String("api-key", os.Getenv("REPCOACH_AUTH_API_KEY"), "API key for remote mode")
	userID := flag.Int("user", 1, "profile ID used when a tool call omits user_id")
	exercisesFile := flag.String("exercises", "", "optional YAML file with extra exercises")
	flag.Parse()

	// stdout carries the protocol; logs go to stderr.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if (*configPath == "") == (*remote == "") {
		fmt.Fprintf(os.Stderr, "Usage: repcoach-mcp (-config config.yaml | -remote URL [-api-key KEY]) [-user ID]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	var ds repmcp.DataSource
	if *remote != "" {
		ds = repmcp.NewHTTPClient(*remote, *apiKey)
		log.Info("remote mode", "server", *remote)
	} else {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		if *exercisesFile == "" {
			*exercisesFile = cfg.ExercisesFile
		}
		db, err := storage.New(context.Background(), cfg.Database.DSN())
		if err != nil {
			log.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		ds = db
	}

	registry, err := coach.RegistryWithFile(*exercisesFile)
	if err != nil {
		log.Error("failed to load exercises", "error", err)
		os.Exit(1)
	}

	s := repmcp.New(ds, registry, Version, log)
	uid := *userID
	if err := mcpserver.ServeStdio(s, mcpserver.WithStdioContextFunc(func(ctx context.Context) context.Context {
		return repmcp.WithUserID(ctx, uid)
	})); err != nil {
		log.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
