package pipeline

import (
	"github.com/mediamill/mediamill/internal/media"
)

// Stage is one ordered step in the fixed transform sequence.
type Stage string

const (
	StageRotate     Stage = "rotate"
	StageFlip       Stage = "flip"
	StageFlop       Stage = "flop"
	StageCrop       Stage = "crop"
	StageResize     Stage = "resize"
	StageBrightness Stage = "brightness"
	StageContrast   Stage = "contrast"
	StageSaturation Stage = "saturation"
	StageHue        Stage = "hue"
	StageGamma      Stage = "gamma"
	StageGrayscale  Stage = "grayscale"
	StageSepia      Stage = "sepia"
	StageNegate     Stage = "negate"
	StageNormalize  Stage = "normalize"
	StageBlur       Stage = "blur"
	StageSharpen    Stage = "sharpen"
	StageWatermark  Stage = "watermark"
	StageEncode     Stage = "encode"

	StageTrim      Stage = "trim"
	StageContainer Stage = "container"
)

// ImageStageOrder is the complete, fixed execution order for the image
// pipeline. The order is a correctness requirement: crop precedes resize so
// resize applies to the cropped region, geometric and color stages precede
// the watermark so it is composited onto the final canvas, and encode is
// always terminal.
var ImageStageOrder = []Stage{
	StageRotate,
	StageFlip,
	StageFlop,
	StageCrop,
	StageResize,
	StageBrightness,
	StageContrast,
	StageSaturation,
	StageHue,
	StageGamma,
	StageGrayscale,
	StageSepia,
	StageNegate,
	StageNormalize,
	StageBlur,
	StageSharpen,
	StageWatermark,
	StageEncode,
}

// VideoStageOrder is the fixed execution order for the video pipeline.
var VideoStageOrder = []Stage{
	StageTrim,
	StageWatermark,
	StageEncode,
	StageContainer,
}

// stageRequested reports whether the operation driving a stage is present in
// the set. Encode and container are terminal stages that always run.
func stageRequested(stage Stage, mediaType media.Type, set *media.OperationSet) bool {
	switch stage {
	case StageEncode, StageContainer:
		return true
	}
	if set == nil {
		return false
	}
	switch stage {
	case StageRotate:
		return set.Rotate != nil
	case StageFlip:
		return set.Flip != nil && *set.Flip
	case StageFlop:
		return set.Flop != nil && *set.Flop
	case StageCrop, StageTrim:
		return set.Crop != nil
	case StageResize:
		return set.Resize != nil
	case StageBrightness:
		return set.Brightness != nil
	case StageContrast:
		return set.Contrast != nil
	case StageSaturation:
		return set.Saturation != nil
	case StageHue:
		return set.Hue != nil
	case StageGamma:
		return set.Gamma != nil
	case StageGrayscale:
		return set.Grayscale != nil && *set.Grayscale
	case StageSepia:
		return set.Sepia != nil && *set.Sepia
	case StageNegate:
		return set.Negate != nil && *set.Negate
	case StageNormalize:
		return set.Normalize != nil && *set.Normalize
	case StageBlur:
		return set.Blur != nil
	case StageSharpen:
		return set.Sharpen != nil
	case StageWatermark:
		return set.Watermark != nil
	}
	return false
}

// StagesFor selects the stages to run for an operation set, preserving the
// fixed order for the media type. The result is independent of the order in
// which operations were specified.
func StagesFor(mediaType media.Type, set *media.OperationSet) []Stage {
	order := ImageStageOrder
	if mediaType == media.TypeVideo {
		order = VideoStageOrder
	}

	stages := make([]Stage, 0, len(order))
	for _, stage := range order {
		if stageRequested(stage, mediaType, set) {
			stages = append(stages, stage)
		}
	}
	return stages
}
