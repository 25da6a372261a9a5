package video

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/ivlev/chatreel/internal/audio"
	"github.com/ivlev/chatreel/internal/system"
	"github.com/ivlev/chatreel/internal/xcall"
)

// Job describes one final encode: the concat list plus the audio to lay under it.
type Job struct {
	ConcatPath string
	Output     string
	TmpDir     string
	Total      float64

	FPS          int
	VideoEncoder string
	Quality      int

	Background       string
	BackgroundVolume float64
	Keystroke        string
	Cues             []audio.Cue

	Send     string
	Receive  string
	Messages []audio.MessageCue
}

func (j Job) messageSound(c audio.MessageCue) string {
	if c.Send {
		return j.Send
	}
	return j.Receive
}

func (j Job) hasAudio() bool {
	if j.Background != "" || (j.Keystroke != "" && len(j.Cues) > 0) {
		return true
	}
	for _, c := range j.Messages {
		if j.messageSound(c) != "" {
			return true
		}
	}
	return false
}

type Result struct {
	Output string
	// AudioFallback is set when the audio mix failed and a silent video was delivered instead.
	AudioFallback bool
	AudioErr      error
}

type Encoder interface {
	Encode(ctx context.Context, job Job) (Result, error)
}

// FFmpegEncoder renders the concat list to video, then muxes background and keystroke audio.
type FFmpegEncoder struct {
	Run     system.RunFunc
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewFFmpegEncoder(timeout time.Duration, logger *slog.Logger) *FFmpegEncoder {
	return &FFmpegEncoder{Run: system.ExecRun, Timeout: timeout, Logger: logger}
}

func (e *FFmpegEncoder) Encode(ctx context.Context, job Job) (Result, error) {
	if err := os.MkdirAll(job.TmpDir, 0755); err != nil {
		return Result{}, errors.WithStack(err)
	}
	if err := os.MkdirAll(filepath.Dir(job.Output), 0755); err != nil {
		return Result{}, errors.WithStack(err)
	}

	silent := job.Output
	if job.hasAudio() {
		silent = filepath.Join(job.TmpDir, "video_only.mp4")
	}
	if err := e.exec(ctx, ConcatArgs(job, silent)); err != nil {
		return Result{}, errors.Wrap(err, "video pass failed")
	}
	if !job.hasAudio() {
		return Result{Output: job.Output}, nil
	}

	mixErr := e.exec(ctx, MixArgs(job, silent))
	if mixErr == nil {
		return Result{Output: job.Output}, nil
	}

	// Mix failed: deliver the silent video rather than nothing.
	e.Logger.Warn("audio mix failed, delivering video without audio", "error", mixErr)
	if err := copyFile(silent, job.Output); err != nil {
		return Result{}, errors.Wrap(err, "failed to deliver video-only fallback")
	}
	return Result{Output: job.Output, AudioFallback: true, AudioErr: mixErr}, nil
}

func (e *FFmpegEncoder) exec(ctx context.Context, args []string) error {
	_, err := xcall.Do(ctx, e.Timeout, struct{}{}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.Run(ctx, "ffmpeg", args...)
	})
	return err
}

// ConcatArgs builds the video pass: ffconcat list in, even-sized yuv420p H.264 out, cut to the
// manifest total.
func ConcatArgs(job Job, out string) []string {
	kw := ffmpeg.KwArgs{
		"vf":       "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"r":        job.FPS,
		"pix_fmt":  "yuv420p",
		"c:v":      job.VideoEncoder,
		"movflags": "+faststart",
	}
	if job.Total > 0 {
		kw["t"] = fmt.Sprintf("%.3f", job.Total)
	}
	for k, v := range qualityArgs(job.VideoEncoder, job.Quality) {
		kw[k] = v
	}
	return ffmpeg.Input(job.ConcatPath, ffmpeg.KwArgs{"f": "concat", "safe": 0}).
		Output(out, kw).
		OverWriteOutput().
		GetArgs()
}

// MixArgs muxes the silent video with the looped background track, one trimmed keystroke clip per
// cue and one send or receive sound per message, each delayed to its start. Inputs are summed
// without normalization, so every track keeps its own gain. Output is cut to the manifest total.
func MixArgs(job Job, video string) []string {
	args := []string{"-y", "-i", video}
	var filters, labels []string
	in := 1

	if job.Background != "" {
		args = append(args, "-stream_loop", "-1", "-i", job.Background)
		vol := job.BackgroundVolume
		if vol <= 0 {
			vol = 1
		}
		filters = append(filters, fmt.Sprintf("[%d:a]atrim=0:%.3f,volume=%.2f[bg]", in, job.Total, vol))
		labels = append(labels, "[bg]")
		in++
	}

	if job.Keystroke != "" {
		for i, c := range job.Cues {
			args = append(args, "-stream_loop", "-1", "-i", job.Keystroke)
			ms := int(c.Start * 1000)
			label := fmt.Sprintf("[k%d]", i)
			filters = append(filters, fmt.Sprintf("[%d:a]atrim=0:%.3f,asetpts=PTS-STARTPTS,adelay=%d|%d%s", in, c.Duration, ms, ms, label))
			labels = append(labels, label)
			in++
		}
	}

	for i, c := range job.Messages {
		sound := job.messageSound(c)
		if sound == "" {
			continue
		}
		args = append(args, "-i", sound)
		ms := int(c.Start * 1000)
		label := fmt.Sprintf("[m%d]", i)
		filters = append(filters, fmt.Sprintf("[%d:a]adelay=%d|%d%s", in, ms, ms, label))
		labels = append(labels, label)
		in++
	}

	if len(labels) == 1 {
		filters = append(filters, labels[0]+"anull[aout]")
	} else {
		filters = append(filters, fmt.Sprintf("%samix=inputs=%d:duration=longest:dropout_transition=0:normalize=0[aout]",
			strings.Join(labels, ""), len(labels)))
	}

	args = append(args,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", "0:v", "-map", "[aout]",
		"-c:v", "copy", "-c:a", "aac", "-b:a", "192k",
		"-t", fmt.Sprintf("%.3f", job.Total),
		job.Output,
	)
	return args
}

// qualityArgs maps the shared quality value onto the encoder's own options.
func qualityArgs(encoder string, quality int) ffmpeg.KwArgs {
	switch encoder {
	case "h264_videotoolbox":
		// VideoToolbox ignores -q:v on some machines; use a bitrate.
		return ffmpeg.KwArgs{"b:v": fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return ffmpeg.KwArgs{"cq": quality}
	default:
		return ffmpeg.KwArgs{"crf": quality, "preset": "medium"}
	}
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
		out.Close()
		return err
	}
	return out.Close()
}
