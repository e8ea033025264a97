package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/upload"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	exercise := flag.String("exercise", "squat", "exercise performed in the recordings")
	exercisesFile := flag.String("exercises", "", "optional YAML file with extra exercises")
	age := flag.Int("age", 0, "age in years (default 25)")
	bmi := flag.Float64("bmi", 0, "body mass index (default 22)")
	level := flag.String("level", "", "fitness level: beginner, intermediate or advanced")
	serverURL := flag.String("server", "", "RepCoach server URL; summaries are uploaded when set with -user")
	apiKey := flag.String("api-key", os.Getenv("REPCOACH_AUTH_API_KEY"), "API key for the server")
	userID := flag.Int("user", 0, "profile ID to upload sessions for")
	dryRun := flag.Bool("dry-run", false, "score recordings but don't upload")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("repcoach-replay", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: repcoach-replay [-exercise squat] [-age N -bmi X -level L] [-server URL -user ID] recording.jsonl...\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *serverURL != "" && *userID <= 0 && !*dryRun {
		fmt.Fprintf(os.Stderr, "Error: -user is required when uploading (or use -dry-run)\n")
		os.Exit(1)
	}

	registry, err := coach.RegistryWithFile(*exercisesFile)
	if err != nil {
		log.Error("failed to load exercises", "error", err)
		os.Exit(1)
	}
	cfg, err := registry.Get(coach.ParseExerciseType(*exercise))
	if err != nil {
		log.Error("unknown exercise", "exercise", *exercise, "error", err)
		os.Exit(1)
	}

	profile := models.Profile{Age: *age, BMI: *bmi, FitnessLevel: models.FitnessLevel(*level)}.Normalized()
	th := coach.Derive(profile, cfg)
	log.Info("replaying", "exercise", cfg.Name, "age", profile.Age, "bmi", profile.BMI,
		"fitness_level", profile.FitnessLevel, "depth", th.Depth, "extension", th.Extension)
	if th.Notice != "" {
		log.Info(th.Notice)
	}

	var client *upload.Client
	var state *upload.StateDB
	if *serverURL != "" && !*dryRun {
		client = upload.NewClient(*serverURL, *apiKey)

		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Error("failed to get home directory", "error", err)
			os.Exit(1)
		}
		state, err = upload.OpenStateDB(filepath.Join(homeDir, ".repcoach-replay"))
		if err != nil {
			log.Error("failed to open state database", "error", err)
			os.Exit(1)
		}
		defer state.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rp := upload.New(client, state, cfg, profile, *userID, *dryRun, log)
	results, stats, err := rp.Run(ctx, paths)
	for _, res := range results {
		printResult(res)
	}
	printStats(stats)
	if err != nil {
		log.Error("replay interrupted", "error", err)
		os.Exit(1)
	}
	if stats.FilesErrored > 0 {
		os.Exit(1)
	}
}

func printResult(res *upload.Result) {
	fmt.Printf("\n=== %s ===\n", res.Path)
	if res.Skipped {
		fmt.Println("  skipped (already uploaded)")
		return
	}
	for _, rep := range res.Reps {
		mark := "correct"
		if !rep.Correct {
			mark = "posture fault"
		}
		fmt.Printf("  rep %-3d frame %-6d %-14s accuracy %.2f%%\n", rep.RepCount, rep.Frame, mark, rep.Accuracy)
	}
	s := res.Summary
	fmt.Printf("  reps %d, correct %d of %d cycles, accuracy %.2f%%\n", s.Reps, s.CorrectReps, s.TotalCycles, s.Accuracy)
	if res.Rejected > 0 {
		fmt.Printf("  %d frames rejected (angle out of range)\n", res.Rejected)
	}
	if res.Uploaded {
		fmt.Printf("  uploaded as %s\n", s.ID)
	}
}

func printStats(stats *upload.Stats) {
	fmt.Println()
	fmt.Println("=== Replay Summary ===")
	fmt.Printf("  Files total:      %d\n", stats.FilesTotal)
	fmt.Printf("  Files uploaded:   %d\n", stats.FilesUploaded)
	fmt.Printf("  Files skipped:    %d (already uploaded)\n", stats.FilesSkipped)
	fmt.Printf("  Files errored:    %d\n", stats.FilesErrored)
	fmt.Println()
	fmt.Printf("  Frames scored:    %d\n", stats.FramesScored)
	fmt.Printf("  Frames rejected:  %d\n", stats.FramesRejected)
	fmt.Printf("  Reps counted:     %d\n", stats.Reps)
	fmt.Println()
}
