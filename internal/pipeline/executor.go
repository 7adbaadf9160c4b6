package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mediamill/mediamill/internal/logger"
	"github.com/mediamill/mediamill/internal/media"
)

const (
	DefaultImageFormat  = "jpeg"
	DefaultImageQuality = 80
	DefaultVideoFormat  = "mp4"

	// DefaultVideoCRF is used when the job does not specify a quality.
	DefaultVideoCRF = 23
)

// QualityToCRF maps user-facing quality (1-100, clamped) to an x264 constant
// rate factor. Higher quality means a lower CRF, monotonically.
func QualityToCRF(quality int) int {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	return int(math.Round(51 - float64(quality)*0.51))
}

// Executor drives the fixed transform sequence for one media type and
// verifies post-conditions on the produced output.
type Executor struct {
	mediaType media.Type
	image     ImageTransformer
	video     VideoTransformer
	outputDir string
}

func NewImageExecutor(engine ImageTransformer, outputDir string) *Executor {
	return &Executor{mediaType: media.TypeImage, image: engine, outputDir: outputDir}
}

func NewVideoExecutor(engine VideoTransformer, outputDir string) *Executor {
	return &Executor{mediaType: media.TypeVideo, video: engine, outputDir: outputDir}
}

func (e *Executor) MediaType() media.Type {
	return e.mediaType
}

// Execute applies the job's operation set to its input file and returns the
// result. Errors are sentinel-wrapped so the worker engine can classify them.
func (e *Executor) Execute(ctx context.Context, job *media.Job) (*media.Result, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	probe := e.probeFunc()
	meta, err := probe(ctx, job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: probe failed: %v", ErrCorruptedMedia, err)
	}

	plan, err := e.buildPlan(ctx, job.Operations, meta)
	if err != nil {
		return nil, err
	}

	outputPath := e.outputPath(job.OriginalName, plan.Format)

	var outMeta *Metadata
	if e.mediaType == media.TypeVideo {
		outMeta, err = e.video.Transform(ctx, job.FilePath, outputPath, plan)
	} else {
		outMeta, err = e.image.Transform(ctx, job.FilePath, outputPath, plan)
	}
	if err != nil {
		removeQuietly(outputPath)
		return nil, err
	}

	processedSize, err := e.verifyOutput(outputPath, outMeta)
	if err != nil {
		return nil, err
	}

	applied := make([]string, len(plan.Stages))
	for i, stage := range plan.Stages {
		applied[i] = string(stage)
	}

	result := &media.Result{
		OutputPath:     outputPath,
		OriginalSize:   job.FileSize,
		ProcessedSize:  processedSize,
		Format:         plan.Format,
		Operations:     applied,
		ProcessingTime: time.Since(start),
	}
	if outMeta != nil {
		result.Width = outMeta.Width
		result.Height = outMeta.Height
		result.Duration = outMeta.Duration
	}

	log.Debug("pipeline executed",
		"stages", len(plan.Stages),
		"output_path", outputPath,
		"processed_size", processedSize,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (e *Executor) probeFunc() func(context.Context, string) (*Metadata, error) {
	if e.mediaType == media.TypeVideo {
		return e.video.Probe
	}
	return e.image.Probe
}

// buildPlan resolves the stage subset, defaults, the clamped crop region and
// the encoder settings for this job.
func (e *Executor) buildPlan(ctx context.Context, set *media.OperationSet, meta *Metadata) (*Plan, error) {
	plan := &Plan{
		Stages: StagesFor(e.mediaType, set),
		Ops:    set,
	}

	if e.mediaType == media.TypeVideo {
		plan.Format = DefaultVideoFormat
		plan.CRF = DefaultVideoCRF
		if set != nil && set.Format != nil {
			plan.Format = *set.Format
		}
		if set != nil && set.Quality != nil {
			plan.Quality = *set.Quality
			plan.CRF = QualityToCRF(*set.Quality)
		}
		if set != nil && set.Crop != nil {
			// Trim past the known media duration is a hard error, unlike
			// image crops which are clamped. Intentional asymmetry.
			if meta.Duration > 0 && set.Crop.EndTime > meta.Duration {
				return nil, fmt.Errorf("%w: trim end %.2fs, media duration %.2fs",
					ErrTimeExceedsDuration, set.Crop.EndTime, meta.Duration)
			}
			plan.TrimStart = set.Crop.StartTime
			plan.TrimDuration = set.Crop.EndTime - set.Crop.StartTime
		}
		return plan, nil
	}

	plan.Format = DefaultImageFormat
	plan.Quality = DefaultImageQuality
	if set != nil && set.Format != nil {
		plan.Format = normalizeImageFormat(*set.Format)
	}
	if set != nil && set.Quality != nil {
		plan.Quality = *set.Quality
	}
	if set != nil && set.Crop != nil {
		plan.Crop = clampCrop(ctx, set.Crop, meta)
	}
	return plan, nil
}

// clampCrop fits the requested region into the frame, logging an adjustment
// instead of failing when the region exceeds the bounds.
func clampCrop(ctx context.Context, crop *media.CropParams, meta *Metadata) *media.CropParams {
	clamped := *crop

	if clamped.X >= meta.Width {
		clamped.X = 0
	}
	if clamped.Y >= meta.Height {
		clamped.Y = 0
	}
	if clamped.X+clamped.Width > meta.Width {
		clamped.Width = meta.Width - clamped.X
	}
	if clamped.Y+clamped.Height > meta.Height {
		clamped.Height = meta.Height - clamped.Y
	}

	if clamped != *crop {
		logger.FromContext(ctx).Warn("crop region clamped to frame bounds",
			"requested_width", crop.Width,
			"requested_height", crop.Height,
			"clamped_width", clamped.Width,
			"clamped_height", clamped.Height,
			"frame_width", meta.Width,
			"frame_height", meta.Height,
		)
	}
	return &clamped
}

// verifyOutput enforces the pipeline post-conditions: the output exists and
// is non-empty, and image outputs have non-zero dimensions. Partial outputs
// are deleted before the error is returned.
func (e *Executor) verifyOutput(outputPath string, outMeta *Metadata) (int64, error) {
	fi, err := os.Stat(outputPath)
	if err != nil || fi.Size() == 0 {
		removeQuietly(outputPath)
		return 0, fmt.Errorf("%w: %s", ErrEmptyOutput, outputPath)
	}

	if e.mediaType == media.TypeImage && outMeta != nil {
		if outMeta.Width == 0 || outMeta.Height == 0 {
			removeQuietly(outputPath)
			return 0, fmt.Errorf("%w: %dx%d", ErrZeroDimensions, outMeta.Width, outMeta.Height)
		}
	}
	return fi.Size(), nil
}

// outputPath builds a collision-free output name: original base name plus a
// timestamp and a random token.
func (e *Executor) outputPath(originalName, format string) string {
	base := strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))
	if base == "" {
		base = "output"
	}
	token := strings.Split(uuid.New().String(), "-")[0]
	ext := formatExtension(format)
	return filepath.Join(e.outputDir, fmt.Sprintf("%s_%d_%s.%s", base, time.Now().UnixNano(), token, ext))
}

func normalizeImageFormat(format string) string {
	if format == "jpg" {
		return "jpeg"
	}
	return format
}

func formatExtension(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Default().Warn("failed to remove partial output", "path", path, "error", err)
	}
}
