package validate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mediamill/mediamill/internal/media"
)

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }
func b(v bool) *bool       { return &v }
func s(v string) *string   { return &v }

func TestOperations_NilSetIsValid(t *testing.T) {
	if err := Operations(media.TypeImage, nil, Context{}); err != nil {
		t.Fatalf("Operations(nil) = %v, want nil", err)
	}
}

func TestOperations_ImageOperationLimit(t *testing.T) {
	set := &media.OperationSet{
		Rotate:     f(90),
		Brightness: f(10),
		Contrast:   f(10),
		Saturation: f(10),
		Hue:        f(10),
		Gamma:      f(1.2),
	}
	err := Operations(media.TypeImage, set, Context{})
	assertCode(t, err, "TOO_MANY_OPERATIONS")
}

func TestOperations_VideoRejectsUnsupportedKeys(t *testing.T) {
	set := &media.OperationSet{Rotate: f(90)}
	err := Operations(media.TypeVideo, set, Context{})
	assertCode(t, err, "UNSUPPORTED_OPERATIONS")
}

func TestOperations_VideoOperationLimit(t *testing.T) {
	// crop plus watermark is exactly the limit.
	set := &media.OperationSet{
		Crop: &media.CropParams{StartTime: 0, EndTime: 5},
		Watermark: &media.Watermark{
			Kind: media.WatermarkText,
			Text: &media.TextWatermark{Text: "hi"},
		},
	}
	if err := Operations(media.TypeVideo, set, Context{}); err != nil {
		t.Fatalf("Operations() = %v, want nil", err)
	}
}

func TestOperations_RangeBounds(t *testing.T) {
	tests := []struct {
		name     string
		set      *media.OperationSet
		wantCode string
	}{
		{"rotate too far", &media.OperationSet{Rotate: f(400)}, "INVALID_ROTATE"},
		{"brightness low", &media.OperationSet{Brightness: f(-150)}, "INVALID_BRIGHTNESS"},
		{"contrast high", &media.OperationSet{Contrast: f(101)}, "INVALID_CONTRAST"},
		{"saturation high", &media.OperationSet{Saturation: f(200)}, "INVALID_SATURATION"},
		{"hue out of range", &media.OperationSet{Hue: f(-400)}, "INVALID_HUE"},
		{"gamma zero", &media.OperationSet{Gamma: f(0)}, "INVALID_GAMMA"},
		{"gamma too high", &media.OperationSet{Gamma: f(3.5)}, "INVALID_GAMMA"},
		{"blur too small", &media.OperationSet{Blur: f(0.1)}, "INVALID_BLUR"},
		{"sharpen too large", &media.OperationSet{Sharpen: f(2000)}, "INVALID_SHARPEN"},
		{"quality zero", &media.OperationSet{Quality: i(0)}, "INVALID_QUALITY"},
		{"quality above 100", &media.OperationSet{Quality: i(101)}, "INVALID_QUALITY"},
		{"compression above 9", &media.OperationSet{Compression: i(10)}, "INVALID_COMPRESSION"},
		{"format unsupported", &media.OperationSet{Format: s("tiff")}, "INVALID_FORMAT"},
		{"webp output rejected", &media.OperationSet{Format: s("webp")}, "INVALID_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Operations(media.TypeImage, tt.set, Context{})
			assertCode(t, err, tt.wantCode)
		})
	}
}

func TestOperations_ValidBoundaries(t *testing.T) {
	tests := []struct {
		name string
		set  *media.OperationSet
	}{
		{"rotate at limit", &media.OperationSet{Rotate: f(-360)}},
		{"gamma bounds", &media.OperationSet{Gamma: f(0.1)}},
		{"quality bounds", &media.OperationSet{Quality: i(100)}},
		{"compression zero", &media.OperationSet{Compression: i(0)}},
		{"boolean filters", &media.OperationSet{Grayscale: b(true), Sepia: b(true), Negate: b(true)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Operations(media.TypeImage, tt.set, Context{}); err != nil {
				t.Fatalf("Operations() = %v, want nil", err)
			}
		})
	}
}

func TestValidateCrop_Image(t *testing.T) {
	tests := []struct {
		name     string
		crop     media.CropParams
		wantCode string
	}{
		{"valid region", media.CropParams{X: 10, Y: 10, Width: 100, Height: 100}, ""},
		{"negative origin", media.CropParams{X: -1, Y: 0, Width: 100, Height: 100}, "INVALID_CROP"},
		{"zero width", media.CropParams{X: 0, Y: 0, Width: 0, Height: 100}, "INVALID_CROP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := &media.OperationSet{Crop: &tt.crop}
			err := Operations(media.TypeImage, set, Context{})
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Operations() = %v, want nil", err)
				}
				return
			}
			assertCode(t, err, tt.wantCode)
		})
	}
}

func TestValidateCrop_VideoTrim(t *testing.T) {
	tests := []struct {
		name     string
		crop     media.CropParams
		wantCode string
	}{
		{"valid trim", media.CropParams{StartTime: 1, EndTime: 10}, ""},
		{"negative start", media.CropParams{StartTime: -1, EndTime: 10}, "INVALID_CROP"},
		{"end before start", media.CropParams{StartTime: 10, EndTime: 5}, "INVALID_CROP"},
		{"end equals start", media.CropParams{StartTime: 5, EndTime: 5}, "INVALID_CROP"},
		{"too short", media.CropParams{StartTime: 0, EndTime: 0.05}, "INVALID_CROP"},
		{"too long", media.CropParams{StartTime: 0, EndTime: 3700}, "INVALID_CROP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := &media.OperationSet{Crop: &tt.crop}
			err := Operations(media.TypeVideo, set, Context{})
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Operations() = %v, want nil", err)
				}
				return
			}
			assertCode(t, err, tt.wantCode)
		})
	}
}

func TestValidateResize(t *testing.T) {
	tests := []struct {
		name     string
		resize   media.ResizeParams
		wantCode string
	}{
		{"width only", media.ResizeParams{Width: 300}, ""},
		{"height only", media.ResizeParams{Height: 300}, ""},
		{"neither dimension", media.ResizeParams{}, "INVALID_RESIZE_DIMENSIONS"},
		{"width above max", media.ResizeParams{Width: 5000}, "INVALID_RESIZE_WIDTH"},
		{"height above max", media.ResizeParams{Width: 100, Height: 5000}, "INVALID_RESIZE_HEIGHT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := &media.OperationSet{Resize: &tt.resize}
			err := Operations(media.TypeImage, set, Context{})
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Operations() = %v, want nil", err)
				}
				return
			}
			assertCode(t, err, tt.wantCode)
		})
	}
}

func TestValidateWatermark_Text(t *testing.T) {
	long := make([]byte, 101)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name     string
		mark     media.TextWatermark
		wantCode string
	}{
		{"valid", media.TextWatermark{Text: "hello", FontSize: 24, Color: "#AABBCC", Opacity: 0.5}, ""},
		{"empty text", media.TextWatermark{Text: ""}, "EMPTY_WATERMARK_TEXT"},
		{"too long", media.TextWatermark{Text: string(long)}, "WATERMARK_TEXT_TOO_LONG"},
		{"font too small", media.TextWatermark{Text: "x", FontSize: 4}, "INVALID_WATERMARK_FONT_SIZE"},
		{"bad color", media.TextWatermark{Text: "x", Color: "red"}, "INVALID_WATERMARK_COLOR"},
		{"opacity too low", media.TextWatermark{Text: "x", Opacity: 0.05}, "INVALID_WATERMARK_OPACITY"},
		{"opacity unset is fine", media.TextWatermark{Text: "x"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := &media.OperationSet{Watermark: &media.Watermark{Kind: media.WatermarkText, Text: &tt.mark}}
			err := Operations(media.TypeImage, set, Context{})
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Operations() = %v, want nil", err)
				}
				return
			}
			assertCode(t, err, tt.wantCode)
		})
	}
}

func TestValidateWatermark_Image(t *testing.T) {
	existing := filepath.Join(t.TempDir(), "mark.png")
	if err := os.WriteFile(existing, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		mark     media.ImageWatermark
		wantCode string
	}{
		{"existing file", media.ImageWatermark{Path: existing}, ""},
		{"missing path", media.ImageWatermark{}, "WATERMARK_IMAGE_NOT_FOUND"},
		{"nonexistent file", media.ImageWatermark{Path: "/nope/mark.png"}, "WATERMARK_IMAGE_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := &media.OperationSet{Watermark: &media.Watermark{Kind: media.WatermarkImage, Image: &tt.mark}}
			err := Operations(media.TypeImage, set, Context{})
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Operations() = %v, want nil", err)
				}
				return
			}
			assertCode(t, err, tt.wantCode)
		})
	}

	// Both watermark variants are valid for video: text renders through
	// drawtext, images composite through an overlay filter.
	t.Run("image watermark valid for video", func(t *testing.T) {
		set := &media.OperationSet{Watermark: &media.Watermark{Kind: media.WatermarkImage, Image: &media.ImageWatermark{Path: existing}}}
		if err := Operations(media.TypeVideo, set, Context{}); err != nil {
			t.Fatalf("Operations() = %v, want nil", err)
		}
	})
}
