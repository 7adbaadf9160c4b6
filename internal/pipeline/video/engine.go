// Package video implements the video transform engine by shelling out to
// ffmpeg and ffprobe.
package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mediamill/mediamill/internal/media"
	"github.com/mediamill/mediamill/internal/pipeline"
)

var (
	ErrFFmpegNotFound  = errors.New("video: ffmpeg binary not found")
	ErrFFprobeNotFound = errors.New("video: ffprobe binary not found")
)

var _ pipeline.VideoTransformer = (*Engine)(nil)

type Config struct {
	FFmpegPath  string
	FFprobePath string
	Preset      string
}

func DefaultConfig() *Config {
	return &Config{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		Preset:      "medium",
	}
}

type Engine struct {
	config *Config
}

// NewEngine verifies both binaries are on PATH before returning an engine.
// Callers degrade to image-only operation when this fails.
func NewEngine(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFFmpegNotFound, err)
	}
	if _, err := exec.LookPath(cfg.FFprobePath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFFprobeNotFound, err)
	}
	return &Engine{config: cfg}, nil
}

// ffprobeOutput mirrors the JSON shape of `ffprobe -print_format json`.
type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
		Name     string `json:"format_name"`
	} `json:"format"`
}

func (e *Engine) Probe(ctx context.Context, path string) (*pipeline.Metadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, e.config.FFprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	meta := &pipeline.Metadata{
		Format: strings.Split(probe.Format.Name, ",")[0],
	}
	if probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			meta.Duration = d
		}
	}
	if probe.Format.Size != "" {
		if s, err := strconv.ParseInt(probe.Format.Size, 10, 64); err == nil {
			meta.Size = s
		}
	}
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			meta.Width = stream.Width
			meta.Height = stream.Height
		case "audio":
			meta.HasAudio = true
		}
	}

	if meta.Width == 0 && meta.Height == 0 && meta.Duration == 0 {
		return nil, fmt.Errorf("no decodable streams in %s", path)
	}
	return meta, nil
}

// Transform runs one ffmpeg invocation covering every planned stage: seek and
// duration flags for the trim, a filter graph for the watermark, codec and CRF
// for the encode, and the container flags last.
func (e *Engine) Transform(ctx context.Context, inputPath, outputPath string, plan *pipeline.Plan) (*pipeline.Metadata, error) {
	meta, err := e.Probe(ctx, inputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrCorruptedMedia, err)
	}

	args, err := e.buildArgs(inputPath, outputPath, plan, meta)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, e.config.FFmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg failed: %w, output: %s", err, truncate(string(output), 512))
	}

	return e.Probe(ctx, outputPath)
}

func (e *Engine) buildArgs(inputPath, outputPath string, plan *pipeline.Plan, meta *pipeline.Metadata) ([]string, error) {
	var args []string

	for _, stage := range plan.Stages {
		switch stage {
		case pipeline.StageTrim:
			// -ss before -i seeks on the demuxer, which is much faster than
			// decoding up to the start point.
			args = append(args,
				"-ss", fmt.Sprintf("%.3f", plan.TrimStart),
				"-t", fmt.Sprintf("%.3f", plan.TrimDuration),
			)
		}
	}

	args = append(args, "-i", inputPath)

	for _, stage := range plan.Stages {
		switch stage {
		case pipeline.StageWatermark:
			wm, err := watermarkArgs(plan.Ops.Watermark, meta)
			if err != nil {
				return nil, err
			}
			args = append(args, wm...)
		case pipeline.StageEncode:
			args = append(args, encodeArgs(plan, meta)...)
		case pipeline.StageContainer:
			args = append(args, containerArgs(plan.Format)...)
		}
	}

	args = append(args, "-y", outputPath)
	return args, nil
}

func encodeArgs(plan *pipeline.Plan, meta *pipeline.Metadata) []string {
	codec := "libx264"
	if plan.Format == "webm" {
		codec = "libvpx-vp9"
	}

	args := []string{
		"-c:v", codec,
		"-crf", strconv.Itoa(plan.CRF),
	}
	if codec == "libx264" {
		args = append(args, "-preset", "medium")
	} else {
		// VP9 CRF mode requires bitrate 0.
		args = append(args, "-b:v", "0")
	}

	if meta.HasAudio {
		if plan.Format == "webm" {
			args = append(args, "-c:a", "libopus", "-b:a", "128k")
		} else {
			args = append(args, "-c:a", "aac", "-b:a", "128k")
		}
	} else {
		args = append(args, "-an")
	}
	return args
}

func containerArgs(format string) []string {
	switch format {
	case "mp4":
		// faststart moves the moov atom to the front for streamable output.
		return []string{"-movflags", "+faststart", "-f", "mp4"}
	case "webm":
		return []string{"-f", "webm"}
	default:
		return nil
	}
}

// watermarkArgs renders a text watermark through drawtext or an image
// watermark through a second input and an overlay filter graph.
func watermarkArgs(w *media.Watermark, meta *pipeline.Metadata) ([]string, error) {
	switch w.Kind {
	case media.WatermarkText:
		return []string{"-vf", drawtextFilter(w.Text, meta)}, nil
	case media.WatermarkImage:
		return []string{"-i", w.Image.Path, "-filter_complex", overlayFilter(w.Image)}, nil
	}
	return nil, fmt.Errorf("unknown watermark kind %q", w.Kind)
}

// overlayFilter scales and fades the second input, then composites it onto the
// main video at the anchored position.
func overlayFilter(i *media.ImageWatermark) string {
	opacity := i.Opacity
	if opacity == 0 {
		opacity = 0.5
	}

	chain := "format=rgba"
	if i.Width > 0 || i.Height > 0 {
		w, h := i.Width, i.Height
		// -1 keeps the aspect ratio when only one dimension is given.
		if w == 0 {
			w = -1
		}
		if h == 0 {
			h = -1
		}
		chain += fmt.Sprintf(",scale=%d:%d", w, h)
	}
	chain += fmt.Sprintf(",colorchannelmixer=aa=%.1f", opacity)

	x, y := overlayPosition(i.Position)
	return fmt.Sprintf("[1:v]%s[wm];[0:v][wm]overlay=%s:%s", chain, x, y)
}

func overlayPosition(position string) (x, y string) {
	padding := 10
	switch strings.ToLower(position) {
	case "top-left":
		return strconv.Itoa(padding), strconv.Itoa(padding)
	case "top-right":
		return fmt.Sprintf("W-w-%d", padding), strconv.Itoa(padding)
	case "bottom-left":
		return strconv.Itoa(padding), fmt.Sprintf("H-h-%d", padding)
	case "center":
		return "(W-w)/2", "(H-h)/2"
	default:
		return fmt.Sprintf("W-w-%d", padding), fmt.Sprintf("H-h-%d", padding)
	}
}

func drawtextFilter(t *media.TextWatermark, meta *pipeline.Metadata) string {
	fontSize := t.FontSize
	if fontSize == 0 {
		fontSize = max(meta.Height/20, 16)
	}

	opacity := t.Opacity
	if opacity == 0 {
		opacity = 0.5
	}

	fontColor := "white"
	if t.Color != "" {
		fontColor = "0x" + strings.TrimPrefix(t.Color, "#")
	}

	x, y := drawtextPosition(t.Position)

	return fmt.Sprintf("drawtext=text='%s':fontsize=%d:fontcolor=%s@%.1f:x=%s:y=%s",
		escapeFFmpegText(t.Text), fontSize, fontColor, opacity, x, y)
}

func drawtextPosition(position string) (x, y string) {
	padding := 10
	switch strings.ToLower(position) {
	case "top-left":
		return strconv.Itoa(padding), strconv.Itoa(padding)
	case "top-right":
		return fmt.Sprintf("w-tw-%d", padding), strconv.Itoa(padding)
	case "bottom-left":
		return strconv.Itoa(padding), fmt.Sprintf("h-th-%d", padding)
	case "center":
		return "(w-tw)/2", "(h-th)/2"
	default:
		return fmt.Sprintf("w-tw-%d", padding), fmt.Sprintf("h-th-%d", padding)
	}
}

// escapeFFmpegText neutralizes drawtext filter metacharacters so user text
// cannot alter the filter graph.
func escapeFFmpegText(text string) string {
	escaped := strings.ReplaceAll(text, "\\", "\\\\\\\\")
	escaped = strings.ReplaceAll(escaped, "'", "'\\''")
	escaped = strings.ReplaceAll(escaped, ":", "\\:")
	return escaped
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
