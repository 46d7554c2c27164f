package ffmpeg

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

const (
	tempoSuffix   = "tempo"
	concatList    = "concat_input.txt"
	outputDirTail = "-output"
)

// SyncPlan lays out every ffmpeg step that rebuilds an audio track from
// points and muxes it with the video.
type SyncPlan struct {
	VideoPath string
	AudioPath string
	// Points includes the trailing end section.
	Points []Point
}

// NewSyncPlan appends the end section to points.
func NewSyncPlan(videoPath, audioPath string, points []Point) *SyncPlan {
	return &SyncPlan{
		VideoPath: videoPath,
		AudioPath: audioPath,
		Points:    append(append([]Point(nil), points...), endPoint),
	}
}

// OutputDir is <video dir>/<video name>-output.
func (p *SyncPlan) OutputDir() string {
	return filepath.Join(filepath.Dir(p.VideoPath), filepath.Base(p.VideoPath)+outputDirTail)
}

// OutputPath is the final video, named like the input.
func (p *SyncPlan) OutputPath() string {
	return filepath.Join(p.OutputDir(), filepath.Base(p.VideoPath))
}

func (p *SyncPlan) audioExt() string {
	return filepath.Ext(p.AudioPath)
}

// PartPath is the cut of section i. A non-empty suffix names a derived part.
func (p *SyncPlan) PartPath(i int, suffix string) string {
	return filepath.Join(p.OutputDir(), partName(i, suffix, p.audioExt()))
}

func partName(i int, suffix, ext string) string {
	if suffix == "" {
		return strconv.Itoa(i) + ext
	}
	return fmt.Sprintf("%d_%s%s", i, suffix, ext)
}

// ConcatListPath is the concat demuxer input file.
func (p *SyncPlan) ConcatListPath() string {
	return filepath.Join(p.OutputDir(), concatList)
}

// ConcatPath is the rebuilt audio track.
func (p *SyncPlan) ConcatPath() string {
	return filepath.Join(p.OutputDir(), "concat"+p.audioExt())
}

// CutArgs cuts section i out of the source audio.
func (p *SyncPlan) CutArgs(i int) []string {
	start := lo.SumBy(p.Points[:i], func(pt Point) float64 { return pt.DurationMs })

	args := []string{"-y", "-i", p.AudioPath, "-ss", seconds(start)}
	if pt := p.Points[i]; !pt.IsEnd() {
		args = append(args, "-t", seconds(pt.DurationMs))
	}
	return append(args, "-acodec", "copy", "-strict", "experimental", p.PartPath(i, ""))
}

// TempoArgs changes the tempo of section i. It returns nil when the tempo
// is unchanged and the part only needs copying.
func (p *SyncPlan) TempoArgs(i int) []string {
	tempo := p.Points[i].Tempo
	if tempo == 1 {
		return nil
	}
	return []string{
		"-y",
		"-i", p.PartPath(i, ""),
		"-filter:a", "atempo=" + strconv.FormatFloat(tempo, 'f', -1, 64),
		"-strict", "experimental",
		p.PartPath(i, tempoSuffix),
	}
}

// ConcatListContent lists the tempo-adjusted parts relative to the list file.
func (p *SyncPlan) ConcatListContent() string {
	var b strings.Builder
	for i := range p.Points {
		fmt.Fprintf(&b, "file './%s'\n", partName(i, tempoSuffix, p.audioExt()))
	}
	return b.String()
}

// ConcatArgs joins the tempo-adjusted parts.
func (p *SyncPlan) ConcatArgs() []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", p.ConcatListPath(),
		"-c", "copy",
		"-strict", "experimental",
		p.ConcatPath(),
	}
}

// MuxArgs combines the rebuilt audio with the untouched video stream.
func (p *SyncPlan) MuxArgs() []string {
	return []string{
		"-y",
		"-i", p.ConcatPath(),
		"-i", p.VideoPath,
		"-c:v", "copy",
		"-strict", "experimental",
		p.OutputPath(),
	}
}

// ExtractPlan splits a video into a silent video and its audio track.
type ExtractPlan struct {
	VideoPath string
	// AudioExt is the audio container extension without the dot, e.g. "aac".
	AudioExt  string
	Overwrite bool
}

func (p *ExtractPlan) base() string {
	return strings.TrimSuffix(p.VideoPath, filepath.Ext(p.VideoPath))
}

// VideoOutput is <base>_video<video ext>.
func (p *ExtractPlan) VideoOutput() string {
	return p.base() + "_video" + filepath.Ext(p.VideoPath)
}

// AudioOutput is <base>_audio.<audio ext>.
func (p *ExtractPlan) AudioOutput() string {
	return p.base() + "_audio." + p.AudioExt
}

func (p *ExtractPlan) overwriteFlag() string {
	if p.Overwrite {
		return "-y"
	}
	return "-n"
}

// VideoArgs copies the video stream and drops audio.
func (p *ExtractPlan) VideoArgs() []string {
	return []string{p.overwriteFlag(), "-i", p.VideoPath, "-vcodec", "copy", "-an", p.VideoOutput()}
}

// AudioArgs copies the audio stream and drops video.
func (p *ExtractPlan) AudioArgs() []string {
	return []string{p.overwriteFlag(), "-i", p.VideoPath, "-vn", "-acodec", "copy", p.AudioOutput()}
}

func seconds(ms float64) string {
	return strconv.FormatFloat(ms/1000, 'f', -1, 64)
}
