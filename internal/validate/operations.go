package validate

import (
	"fmt"
	"os"
	"regexp"

	"github.com/mediamill/mediamill/internal/apperror"
	"github.com/mediamill/mediamill/internal/logger"
	"github.com/mediamill/mediamill/internal/media"
)

// Context carries file attributes for size-aware policy decisions. Large
// files with many operations only log a warning, never fail.
type Context struct {
	FileSize int64
	MimeType string
	Filename string
}

const (
	MaxImageOperations = 5
	MaxVideoOperations = 2

	MaxDimension = 4096

	MinTrimDuration = 0.1
	MaxTrimDuration = 3600.0

	maxWatermarkTextLength = 100

	// Files past this size get a warning when they also request several
	// operations, since each stage decodes the full frame.
	largeFileWarnBytes = 50 << 20
	largeFileWarnOps   = 3
)

var hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// videoOperations is the full set of operation keys the video pipeline
// accepts. Everything else is rejected outright.
var videoOperations = map[string]bool{
	"crop":      true,
	"watermark": true,
}

// Operations validates every operation in the set against the bounds for the
// media type. Returns nil or a *apperror.Error; it never mutates the set.
func Operations(mediaType media.Type, set *media.OperationSet, vc Context) error {
	if set == nil {
		return nil
	}

	names := set.Names()

	maxOps := MaxImageOperations
	if mediaType == media.TypeVideo {
		maxOps = MaxVideoOperations
		for _, name := range names {
			if !videoOperations[name] {
				return apperror.Wrap(fmt.Errorf("operation %q not supported for video", name), apperror.ErrUnsupportedOperations)
			}
		}
	}
	if len(names) > maxOps {
		return apperror.Wrap(fmt.Errorf("%d operations requested, limit is %d", len(names), maxOps), apperror.ErrTooManyOperations)
	}

	if vc.FileSize > largeFileWarnBytes && len(names) >= largeFileWarnOps {
		logger.Default().Warn("large file with many operations",
			"filename", vc.Filename,
			"size_bytes", vc.FileSize,
			"operations", len(names),
		)
	}

	if set.Crop != nil {
		if err := validateCrop(mediaType, set.Crop); err != nil {
			return err
		}
	}
	if set.Resize != nil {
		if err := validateResize(set.Resize); err != nil {
			return err
		}
	}
	if set.Rotate != nil {
		if *set.Rotate < -360 || *set.Rotate > 360 {
			return apperror.Validation("INVALID_ROTATE", "rotate degrees must be between -360 and 360")
		}
	}
	if set.Brightness != nil {
		if err := rangeCheck("brightness", "INVALID_BRIGHTNESS", *set.Brightness, -100, 100); err != nil {
			return err
		}
	}
	if set.Contrast != nil {
		if err := rangeCheck("contrast", "INVALID_CONTRAST", *set.Contrast, -100, 100); err != nil {
			return err
		}
	}
	if set.Saturation != nil {
		if err := rangeCheck("saturation", "INVALID_SATURATION", *set.Saturation, -100, 100); err != nil {
			return err
		}
	}
	if set.Hue != nil {
		if err := rangeCheck("hue", "INVALID_HUE", *set.Hue, -360, 360); err != nil {
			return err
		}
	}
	if set.Gamma != nil {
		if err := rangeCheck("gamma", "INVALID_GAMMA", *set.Gamma, 0.1, 3.0); err != nil {
			return err
		}
	}
	if set.Blur != nil {
		if err := rangeCheck("blur", "INVALID_BLUR", *set.Blur, 0.3, 1000); err != nil {
			return err
		}
	}
	if set.Sharpen != nil {
		if err := rangeCheck("sharpen", "INVALID_SHARPEN", *set.Sharpen, 0.3, 1000); err != nil {
			return err
		}
	}
	if set.Quality != nil {
		if *set.Quality < 1 || *set.Quality > 100 {
			return apperror.Validation("INVALID_QUALITY", "quality must be an integer between 1 and 100")
		}
	}
	if set.Compression != nil {
		if *set.Compression < 0 || *set.Compression > 9 {
			return apperror.Validation("INVALID_COMPRESSION", "compression must be an integer between 0 and 9")
		}
	}
	if set.Format != nil {
		if err := validateFormat(mediaType, *set.Format); err != nil {
			return err
		}
	}
	if set.Watermark != nil {
		if err := validateWatermark(set.Watermark); err != nil {
			return err
		}
	}

	return nil
}

func validateCrop(mediaType media.Type, crop *media.CropParams) error {
	if mediaType == media.TypeVideo {
		// Video "crop" trims a time range. Out-of-range values are a hard
		// error here, unlike image crops which are clamped at execution.
		if crop.StartTime < 0 {
			return apperror.Validation("INVALID_CROP", "trim start time must not be negative")
		}
		if crop.EndTime <= crop.StartTime {
			return apperror.Validation("INVALID_CROP", "trim end time must be greater than start time")
		}
		duration := crop.EndTime - crop.StartTime
		if duration < MinTrimDuration {
			return apperror.Validation("INVALID_CROP", fmt.Sprintf("trim duration must be at least %.1fs", MinTrimDuration))
		}
		if duration > MaxTrimDuration {
			return apperror.Validation("INVALID_CROP", fmt.Sprintf("trim duration must not exceed %.0fs", MaxTrimDuration))
		}
		return nil
	}

	if crop.X < 0 || crop.Y < 0 {
		return apperror.Validation("INVALID_CROP", "crop origin must not be negative")
	}
	if crop.Width <= 0 || crop.Height <= 0 {
		return apperror.Validation("INVALID_CROP", "crop width and height must be positive")
	}
	return nil
}

func validateResize(resize *media.ResizeParams) error {
	if resize.Width <= 0 && resize.Height <= 0 {
		return apperror.Validation("INVALID_RESIZE_DIMENSIONS", "resize requires a width or a height")
	}
	if resize.Width < 0 || resize.Width > MaxDimension {
		return apperror.Validation("INVALID_RESIZE_WIDTH", fmt.Sprintf("resize width must be between 1 and %d", MaxDimension))
	}
	if resize.Height < 0 || resize.Height > MaxDimension {
		return apperror.Validation("INVALID_RESIZE_HEIGHT", fmt.Sprintf("resize height must be between 1 and %d", MaxDimension))
	}
	return nil
}

func validateFormat(mediaType media.Type, format string) error {
	var allowed map[string]bool
	if mediaType == media.TypeVideo {
		allowed = map[string]bool{"mp4": true, "webm": true}
	} else {
		// webp is accepted as input but not as an output target; there is no
		// encoder for it in the image engine.
		allowed = map[string]bool{"jpeg": true, "jpg": true, "png": true, "gif": true, "bmp": true}
	}
	if !allowed[format] {
		return apperror.Validation("INVALID_FORMAT", fmt.Sprintf("output format %q is not supported", format))
	}
	return nil
}

func validateWatermark(w *media.Watermark) error {
	switch w.Kind {
	case media.WatermarkText:
		t := w.Text
		if t == nil || t.Text == "" {
			return apperror.Validation("EMPTY_WATERMARK_TEXT", "watermark text must not be empty")
		}
		if len(t.Text) > maxWatermarkTextLength {
			return apperror.Validation("WATERMARK_TEXT_TOO_LONG", fmt.Sprintf("watermark text must not exceed %d characters", maxWatermarkTextLength))
		}
		if t.FontSize != 0 && (t.FontSize < 8 || t.FontSize > 200) {
			return apperror.Validation("INVALID_WATERMARK_FONT_SIZE", "watermark font size must be between 8 and 200")
		}
		if t.Color != "" && !hexColorPattern.MatchString(t.Color) {
			return apperror.Validation("INVALID_WATERMARK_COLOR", "watermark color must match #RRGGBB")
		}
		if err := validateOpacity(t.Opacity); err != nil {
			return err
		}
	case media.WatermarkImage:
		i := w.Image
		if i == nil || i.Path == "" {
			return apperror.Validation("WATERMARK_IMAGE_NOT_FOUND", "watermark image path is required")
		}
		if _, err := os.Stat(i.Path); err != nil {
			return apperror.WrapWithMessage(err, "WATERMARK_IMAGE_NOT_FOUND", "watermark image does not exist", 400)
		}
		if i.Width < 0 || i.Height < 0 {
			return apperror.Validation("INVALID_WATERMARK_DIMENSIONS", "watermark dimensions must be positive")
		}
		if err := validateOpacity(i.Opacity); err != nil {
			return err
		}
	default:
		return apperror.Validation("INVALID_WATERMARK", "watermark type must be text or image")
	}
	return nil
}

func validateOpacity(opacity float64) error {
	if opacity == 0 {
		return nil // unset, executor applies the default
	}
	if opacity < 0.1 || opacity > 1.0 {
		return apperror.Validation("INVALID_WATERMARK_OPACITY", "watermark opacity must be between 0.1 and 1.0")
	}
	return nil
}

func rangeCheck(name, code string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return apperror.Validation(code, fmt.Sprintf("%s must be between %g and %g", name, lo, hi))
	}
	return nil
}
