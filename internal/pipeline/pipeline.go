package pipeline

import (
	"context"
	"errors"

	"github.com/mediamill/mediamill/internal/media"
)

// Errors raised during pipeline execution. The worker engine classifies these
// into recoverable and unrecoverable failures; everything here except
// ErrTransient is terminal.
var (
	ErrCorruptedMedia      = errors.New("pipeline: corrupted or unsupported media")
	ErrEmptyOutput         = errors.New("pipeline: output file is missing or empty")
	ErrZeroDimensions      = errors.New("pipeline: output has zero dimensions")
	ErrTimeExceedsDuration = errors.New("pipeline: trim end exceeds media duration")
	ErrTransient           = errors.New("pipeline: transient failure")
)

// Metadata describes a media file as reported by the transform engine.
type Metadata struct {
	Width    int
	Height   int
	Duration float64
	Format   string
	HasAudio bool
	Size     int64
}

// Plan is the resolved execution plan handed to a transform engine: the
// ordered stage subset plus parameters with defaults applied and image crops
// already clamped. Engines must apply stages strictly in Plan.Stages order.
type Plan struct {
	Stages []Stage
	Ops    *media.OperationSet

	// Crop is the clamped pixel region (image) or nil.
	Crop *media.CropParams

	Format  string
	Quality int

	// Video encode settings.
	CRF          int
	TrimStart    float64
	TrimDuration float64
}

// ImageTransformer is the contract with the external image transform engine.
type ImageTransformer interface {
	Probe(ctx context.Context, path string) (*Metadata, error)
	Transform(ctx context.Context, inputPath, outputPath string, plan *Plan) (*Metadata, error)
}

// VideoTransformer is the contract with the external video transform engine.
type VideoTransformer interface {
	Probe(ctx context.Context, path string) (*Metadata, error)
	Transform(ctx context.Context, inputPath, outputPath string, plan *Plan) (*Metadata, error)
}
