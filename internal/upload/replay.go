package upload

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
)

// Frame is one line of a JSON-lines recording. At is optional.
type Frame struct {
	At     time.Time          `json:"at"`
	Angles models.AngleSample `json:"angles"`
}

// RepEvent records a completed rep during replay.
type RepEvent struct {
	Frame    int     `json:"frame"`
	RepCount int     `json:"rep_count"`
	Correct  bool    `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// Result is the outcome of scoring one recording.
type Result struct {
	Path     string             `json:"path"`
	Frames   int                `json:"frames"`
	Rejected int                `json:"rejected"`
	Reps     []RepEvent         `json:"reps"`
	Final    models.FrameResult `json:"final"`
	Summary  models.SessionRow  `json:"summary"`
	Uploaded bool               `json:"uploaded"`
	Skipped  bool               `json:"skipped"`
}

// Stats tracks replay progress.
type Stats struct {
	FilesTotal    int
	FilesUploaded int
	FilesSkipped  int
	FilesErrored  int

	FramesScored   int
	FramesRejected int
	Reps           int
}

// Score runs a fresh engine over a recording. Frames with out-of-range angles
// are counted and skipped; a malformed line aborts with its line number.
func Score(r io.Reader, cfg coach.ExerciseConfig, profile models.Profile) (*Result, error) {
	engine := coach.NewEngine(cfg)
	res := &Result{}
	var first, last time.Time

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var f Frame
		if err := json.Unmarshal([]byte(text), &f); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !f.At.IsZero() {
			if first.IsZero() {
				first = f.At
			}
			last = f.At
		}

		prev := res.Final
		out, err := engine.ProcessFrame(f.Angles, profile)
		if errors.Is(err, coach.ErrInvalidInput) {
			res.Rejected++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		res.Frames++
		if out.RepCompleted {
			res.Reps = append(res.Reps, RepEvent{
				Frame:    res.Frames,
				RepCount: out.RepCount,
				Correct:  out.CorrectReps > prev.CorrectReps,
				Accuracy: out.Accuracy,
			})
		}
		res.Final = out
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading recording: %w", err)
	}

	res.Summary = models.SessionRow{
		Exercise:    string(cfg.Type),
		Reps:        res.Final.RepCount,
		TotalCycles: res.Final.TotalCycles,
		CorrectReps: res.Final.CorrectReps,
		Accuracy:    res.Final.Accuracy,
		StartedAt:   first,
		EndedAt:     last,
	}
	return res, nil
}

// Replayer scores recordings offline and uploads their summaries.
type Replayer struct {
	client  *Client
	state   *StateDB
	cfg     coach.ExerciseConfig
	profile models.Profile
	userID  int
	dryRun  bool
	log     *slog.Logger
	stats   Stats
}

// New creates a Replayer. client and state may be nil; without a client or a
// user ID nothing is uploaded.
func New(client *Client, state *StateDB, cfg coach.ExerciseConfig, profile models.Profile, userID int, dryRun bool, log *slog.Logger) *Replayer {
	return &Replayer{
		client:  client,
		state:   state,
		cfg:     cfg,
		profile: profile.Normalized(),
		userID:  userID,
		dryRun:  dryRun,
		log:     log,
	}
}

func (r *Replayer) uploads() bool {
	return r.client != nil && r.userID > 0 && !r.dryRun
}

// Run replays each path in order. A failing file is logged and counted; Run
// only returns an error when ctx is cancelled.
func (r *Replayer) Run(ctx context.Context, paths []string) ([]*Result, *Stats, error) {
	var results []*Result
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return results, &r.stats, err
		}
		r.stats.FilesTotal++
		res, err := r.replayFile(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return results, &r.stats, ctx.Err()
			}
			r.stats.FilesErrored++
			r.log.Error("replay failed", "path", path, "error", err)
			continue
		}
		results = append(results, res)
	}
	return results, &r.stats, nil
}

func (r *Replayer) replayFile(ctx context.Context, path string) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	hash, err := HashFile(path)
	if err != nil {
		return nil, fmt.Errorf("hashing: %w", err)
	}

	id := recordingID(hash, r.cfg.Type, r.userID)
	if r.uploads() && r.state != nil {
		done, err := r.state.IsUploaded(id.String())
		if err != nil {
			return nil, fmt.Errorf("checking state: %w", err)
		}
		if done {
			r.stats.FilesSkipped++
			r.log.Info("skipping recording, already uploaded", "path", path)
			return &Result{Path: path, Skipped: true}, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res, err := Score(f, r.cfg, r.profile)
	if err != nil {
		return nil, err
	}
	res.Path = path
	r.stats.FramesScored += res.Frames
	r.stats.FramesRejected += res.Rejected
	r.stats.Reps += res.Final.RepCount

	row := &res.Summary
	row.ID = id
	row.UserID = r.userID
	if row.StartedAt.IsZero() {
		row.StartedAt = info.ModTime()
	}
	if row.EndedAt.Before(row.StartedAt) {
		row.EndedAt = row.StartedAt
	}

	r.log.Info("recording scored", "path", path, "frames", res.Frames, "rejected", res.Rejected,
		"reps", row.Reps, "accuracy", row.Accuracy)

	if !r.uploads() {
		return res, nil
	}
	inserted, err := r.client.SendSession(ctx, *row)
	if err != nil {
		return nil, fmt.Errorf("uploading: %w", err)
	}
	res.Uploaded = true
	r.stats.FilesUploaded++
	if !inserted {
		r.log.Info("server already had session", "path", path, "session", row.ID.String())
	}
	if r.state != nil {
		if err := r.state.MarkUploaded(path, info.Size(), hash, row.ID.String()); err != nil {
			r.log.Warn("failed to record upload state", "path", path, "error", err)
		}
	}
	return res, nil
}

// recordingID derives a stable session ID so re-uploading the same recording
// for the same user and exercise is a no-op on the server.
func recordingID(hash string, exercise coach.ExerciseType, userID int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("repcoach:"+hash+":"+string(exercise)+":"+strconv.Itoa(userID)))
}
