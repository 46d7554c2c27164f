// Package main provides the media preparation tool: it rebuilds an audio
// track from tempo points and splits videos into their streams.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediasync/internal/infra/ffmpeg"
	"github.com/osa030/mediasync/internal/infra/logger"
)

var (
	app        = kingpin.New("mediasync-synctool", "Prepare audio and video files for mediasync")
	ffmpegPath = app.Flag("ffmpeg", "Path to the ffmpeg binary").Default("ffmpeg").Envar("MEDIASYNC_FFMPEG").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()

	// sync command
	syncCmd    = app.Command("sync", "Rebuild the audio from tempo points and mux it with the video")
	syncVideo  = syncCmd.Arg("video", "Video file").Required().ExistingFile()
	syncAudio  = syncCmd.Arg("audio", "Audio file").Required().ExistingFile()
	syncPoints = syncCmd.Arg("points", `JSON file, e.g. {"points": [[123.45, 0.95]]}`).Required().ExistingFile()
	syncForce  = syncCmd.Flag("force", "Replace an existing output directory").Bool()

	// extract command
	extractCmd       = app.Command("extract", "Split a video into a silent video and its audio")
	extractVideo     = extractCmd.Arg("video", "Video file").Required().ExistingFile()
	extractAudioExt  = extractCmd.Arg("audio-ext", "Audio file extension, e.g. aac").Required().String()
	extractOverwrite = extractCmd.Flag("force", "Overwrite existing output files").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := ffmpeg.Command{Path: *ffmpegPath}

	var err error
	switch command {
	case syncCmd.FullCommand():
		err = runSync(ctx, runner)
	case extractCmd.FullCommand():
		err = ffmpeg.Extract(ctx, runner, &ffmpeg.ExtractPlan{
			VideoPath: *extractVideo,
			AudioExt:  *extractAudioExt,
			Overwrite: *extractOverwrite,
		})
	}
	if err != nil {
		zlog.Error().Msgf("Failed to %s: %v", command, err)
		stop()
		os.Exit(1)
	}
}

func runSync(ctx context.Context, runner ffmpeg.Executor) error {
	data, err := os.ReadFile(*syncPoints)
	if err != nil {
		return errors.Wrap(err, "read points")
	}
	points, err := ffmpeg.ParsePoints(data)
	if err != nil {
		return errors.Wrapf(err, "parse points in %s", *syncPoints)
	}

	plan := ffmpeg.NewSyncPlan(*syncVideo, *syncAudio, points)
	_, err = ffmpeg.Sync(ctx, runner, plan, ffmpeg.SyncOptions{Force: *syncForce})
	return err
}
