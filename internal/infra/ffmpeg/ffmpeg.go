// Package ffmpeg prepares media for the bridge: it rebuilds an audio track
// section by section at new tempos and splits videos into their streams.
package ffmpeg

import (
	"context"
	"io"
	"io/fs"
	"os"
	"os/exec"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

var (
	// ErrNotInstalled is returned when the ffmpeg binary cannot be run.
	ErrNotInstalled = errors.New("ffmpeg seems not to be installed")
	// ErrOutputExists is returned when the sync output directory exists and
	// overwriting was not requested.
	ErrOutputExists = errors.New("output directory already exists")
)

// Executor runs ffmpeg with the given arguments.
type Executor interface {
	Run(ctx context.Context, args ...string) error
}

// Command runs the ffmpeg binary at Path.
type Command struct {
	Path string
}

// Run executes ffmpeg and includes its output in any error.
func (c Command) Run(ctx context.Context, args ...string) error {
	path := c.Path
	if path == "" {
		path = "ffmpeg"
	}
	zlog.Debug().Strs("args", args).Msgf("Running %s", path)

	output, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err != nil {
		var pathErr *fs.PathError
		if errors.Is(err, exec.ErrNotFound) || errors.As(err, &pathErr) {
			return errors.Mark(errors.Wrap(err, path), ErrNotInstalled)
		}
		return errors.Wrapf(err, "ffmpeg failed (output: %s)", output)
	}
	return nil
}

// Check verifies that ffmpeg can be run.
func Check(ctx context.Context, runner Executor) error {
	if err := runner.Run(ctx, "-version"); err != nil {
		return errors.Mark(err, ErrNotInstalled)
	}
	return nil
}

// SyncOptions controls Sync.
type SyncOptions struct {
	// Force removes an existing output directory first.
	Force bool
}

// Sync cuts the audio into the plan's sections, applies each tempo, joins
// the sections again and muxes them with the video. It returns the output
// directory.
func Sync(ctx context.Context, runner Executor, plan *SyncPlan, opts SyncOptions) (string, error) {
	dir := plan.OutputDir()

	_, statErr := os.Stat(dir)
	exists := statErr == nil
	if exists && !opts.Force {
		return "", errors.Wrapf(ErrOutputExists, "%s: move or delete it first, or force overwriting", dir)
	}
	if err := Check(ctx, runner); err != nil {
		return "", err
	}
	if exists {
		if err := os.RemoveAll(dir); err != nil {
			return "", errors.Wrapf(err, "remove %s", dir)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create %s", dir)
	}

	zlog.Info().Msgf("Cutting audio into %d parts", len(plan.Points))
	for i := range plan.Points {
		if err := runner.Run(ctx, plan.CutArgs(i)...); err != nil {
			return "", errors.Wrapf(err, "cut part %d", i)
		}
	}

	zlog.Info().Msg("Changing tempo")
	for i := range plan.Points {
		args := plan.TempoArgs(i)
		if args == nil {
			if err := copyFile(plan.PartPath(i, ""), plan.PartPath(i, tempoSuffix)); err != nil {
				return "", errors.Wrapf(err, "copy part %d", i)
			}
			continue
		}
		if err := runner.Run(ctx, args...); err != nil {
			return "", errors.Wrapf(err, "change tempo of part %d", i)
		}
	}

	zlog.Info().Msg("Concatenating audio")
	if err := os.WriteFile(plan.ConcatListPath(), []byte(plan.ConcatListContent()), 0o644); err != nil {
		return "", errors.Wrap(err, "write concat list")
	}
	if err := runner.Run(ctx, plan.ConcatArgs()...); err != nil {
		return "", errors.Wrap(err, "concatenate audio")
	}

	zlog.Info().Msg("Generating new video")
	if err := runner.Run(ctx, plan.MuxArgs()...); err != nil {
		return "", errors.Wrap(err, "generate video")
	}

	zlog.Info().Msgf("Successfully generated %s", dir)
	return dir, nil
}

// Extract writes the video stream and the audio stream of plan.VideoPath
// to separate files.
func Extract(ctx context.Context, runner Executor, plan *ExtractPlan) error {
	if err := Check(ctx, runner); err != nil {
		return err
	}

	zlog.Info().Msg("Extracting video")
	if err := runner.Run(ctx, plan.VideoArgs()...); err != nil {
		return errors.Wrap(err, "extract video")
	}

	zlog.Info().Msg("Extracting audio")
	if err := runner.Run(ctx, plan.AudioArgs()...); err != nil {
		return errors.Wrap(err, "extract audio")
	}

	zlog.Info().Msgf("See files %s and %s", plan.VideoOutput(), plan.AudioOutput())
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
