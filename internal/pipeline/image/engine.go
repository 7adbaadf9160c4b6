// Package image implements the image transform engine on top of the
// disintegration/imaging primitives, with gg for text compositing.
package image

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/mediamill/mediamill/internal/media"
	"github.com/mediamill/mediamill/internal/pipeline"
)

var _ pipeline.ImageTransformer = (*Engine)(nil)

// fontSearchPaths are tried in order when a watermark needs a font face. An
// explicit path from config is tried first.
var fontSearchPaths = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
	"/System/Library/Fonts/Helvetica.ttc",
}

type Engine struct {
	fontPath string
}

func NewEngine(fontPath string) *Engine {
	return &Engine{fontPath: fontPath}
}

// Probe decodes just the image header to report dimensions and format.
func (e *Engine) Probe(ctx context.Context, path string) (*pipeline.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return &pipeline.Metadata{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: format,
		Size:   fi.Size(),
	}, nil
}

// Transform decodes the input, applies the planned stages in order and
// encodes the result to outputPath.
func (e *Engine) Transform(ctx context.Context, inputPath, outputPath string, plan *pipeline.Plan) (*pipeline.Metadata, error) {
	img, err := imaging.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrCorruptedMedia, err)
	}

	for _, stage := range plan.Stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err = e.applyStage(img, stage, plan)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", stage, err)
		}
	}

	if err := e.encode(img, outputPath, plan); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return &pipeline.Metadata{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: plan.Format,
	}, nil
}

func (e *Engine) applyStage(img image.Image, stage pipeline.Stage, plan *pipeline.Plan) (image.Image, error) {
	ops := plan.Ops
	switch stage {
	case pipeline.StageRotate:
		return imaging.Rotate(img, -*ops.Rotate, color.Transparent), nil
	case pipeline.StageFlip:
		return imaging.FlipV(img), nil
	case pipeline.StageFlop:
		return imaging.FlipH(img), nil
	case pipeline.StageCrop:
		crop := plan.Crop
		rect := image.Rect(crop.X, crop.Y, crop.X+crop.Width, crop.Y+crop.Height)
		return imaging.Crop(img, rect), nil
	case pipeline.StageResize:
		return resize(img, ops.Resize), nil
	case pipeline.StageBrightness:
		return imaging.AdjustBrightness(img, *ops.Brightness), nil
	case pipeline.StageContrast:
		return imaging.AdjustContrast(img, *ops.Contrast), nil
	case pipeline.StageSaturation:
		return imaging.AdjustSaturation(img, *ops.Saturation), nil
	case pipeline.StageHue:
		return rotateHue(img, *ops.Hue), nil
	case pipeline.StageGamma:
		return imaging.AdjustGamma(img, *ops.Gamma), nil
	case pipeline.StageGrayscale:
		return imaging.Grayscale(img), nil
	case pipeline.StageSepia:
		return sepia(img), nil
	case pipeline.StageNegate:
		return imaging.Invert(img), nil
	case pipeline.StageNormalize:
		return normalize(img), nil
	case pipeline.StageBlur:
		return imaging.Blur(img, *ops.Blur), nil
	case pipeline.StageSharpen:
		return imaging.Sharpen(img, *ops.Sharpen), nil
	case pipeline.StageWatermark:
		return e.watermark(img, ops.Watermark)
	case pipeline.StageEncode:
		// Terminal stage, handled by encode.
		return img, nil
	}
	return nil, fmt.Errorf("unknown stage %q", stage)
}

func resize(img image.Image, params *media.ResizeParams) image.Image {
	switch params.Fit {
	case "cover":
		return imaging.Fill(img, params.Width, params.Height, imaging.Center, imaging.Lanczos)
	case "contain":
		return imaging.Fit(img, params.Width, params.Height, imaging.Lanczos)
	default:
		return imaging.Resize(img, params.Width, params.Height, imaging.Lanczos)
	}
}

// rotateHue shifts the hue of every pixel by the given number of degrees.
func rotateHue(img image.Image, degrees float64) image.Image {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		h, s, l := rgbToHSL(c.R, c.G, c.B)
		h = math.Mod(h+degrees, 360)
		if h < 0 {
			h += 360
		}
		r, g, b := hslToRGB(h, s, l)
		return color.NRGBA{R: r, G: g, B: b, A: c.A}
	})
}

// sepia applies the standard sepia tone matrix.
func sepia(img image.Image) image.Image {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r, g, b := float64(c.R), float64(c.G), float64(c.B)
		return color.NRGBA{
			R: clampByte(0.393*r + 0.769*g + 0.189*b),
			G: clampByte(0.349*r + 0.686*g + 0.168*b),
			B: clampByte(0.272*r + 0.534*g + 0.131*b),
			A: c.A,
		}
	})
}

// normalize stretches the luminance range to span the full [0,255] interval.
func normalize(img image.Image) image.Image {
	nrgba := imaging.Clone(img)

	lo, hi := uint8(255), uint8(0)
	for i := 0; i < len(nrgba.Pix); i += 4 {
		y := luminance(nrgba.Pix[i], nrgba.Pix[i+1], nrgba.Pix[i+2])
		if y < lo {
			lo = y
		}
		if y > hi {
			hi = y
		}
	}
	if hi <= lo {
		return nrgba
	}

	scale := 255.0 / float64(hi-lo)
	return imaging.AdjustFunc(nrgba, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clampByte((float64(c.R) - float64(lo)) * scale),
			G: clampByte((float64(c.G) - float64(lo)) * scale),
			B: clampByte((float64(c.B) - float64(lo)) * scale),
			A: c.A,
		}
	})
}

func (e *Engine) watermark(img image.Image, w *media.Watermark) (image.Image, error) {
	switch w.Kind {
	case media.WatermarkText:
		return e.textWatermark(img, w.Text)
	case media.WatermarkImage:
		return imageWatermark(img, w.Image)
	}
	return nil, fmt.Errorf("unknown watermark kind %q", w.Kind)
}

func (e *Engine) textWatermark(img image.Image, t *media.TextWatermark) (image.Image, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	dc := gg.NewContext(width, height)
	dc.DrawImage(img, 0, 0)

	fontSize := float64(t.FontSize)
	if fontSize == 0 {
		fontSize = 24
	}
	minDim := float64(min(width, height))
	if fontSize > minDim/4 {
		fontSize = minDim / 4
	}

	e.loadFont(dc, fontSize)

	opacity := t.Opacity
	if opacity == 0 {
		opacity = 0.5
	}
	r, g, b := parseHexColor(t.Color)

	x, y, ax, ay := textPosition(width, height, t.Position, fontSize)

	// Shadow first, then the text itself.
	dc.SetRGBA(0, 0, 0, opacity*0.5)
	dc.DrawStringAnchored(t.Text, x+2, y+2, ax, ay)

	dc.SetRGBA(r, g, b, opacity)
	dc.DrawStringAnchored(t.Text, x, y, ax, ay)

	return dc.Image(), nil
}

func (e *Engine) loadFont(dc *gg.Context, size float64) {
	paths := fontSearchPaths
	if e.fontPath != "" {
		paths = append([]string{e.fontPath}, paths...)
	}
	for _, p := range paths {
		if err := dc.LoadFontFace(p, size); err == nil {
			return
		}
	}
	// gg falls back to its basic face when none load.
}

func imageWatermark(img image.Image, iw *media.ImageWatermark) (image.Image, error) {
	mark, err := imaging.Open(iw.Path)
	if err != nil {
		return nil, fmt.Errorf("open watermark: %w", err)
	}

	if iw.Width > 0 || iw.Height > 0 {
		mark = imaging.Fit(mark, orDefault(iw.Width, mark.Bounds().Dx()), orDefault(iw.Height, mark.Bounds().Dy()), imaging.Lanczos)
	}

	opacity := iw.Opacity
	if opacity == 0 {
		opacity = 0.5
	}

	pos := overlayPosition(img.Bounds(), mark.Bounds(), iw.Position)
	return imaging.Overlay(img, mark, pos, opacity), nil
}

func (e *Engine) encode(img image.Image, outputPath string, plan *pipeline.Plan) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(plan.Format) {
	case "jpeg", "jpg":
		return jpeg.Encode(f, img, &jpeg.Options{Quality: plan.Quality})
	case "png":
		enc := &png.Encoder{CompressionLevel: pngLevel(plan.Ops)}
		return enc.Encode(f, img)
	case "gif":
		return imaging.Encode(f, img, imaging.GIF)
	case "bmp":
		return bmp.Encode(f, img)
	default:
		return fmt.Errorf("unsupported output format %q", plan.Format)
	}
}

func pngLevel(ops *media.OperationSet) png.CompressionLevel {
	if ops == nil || ops.Compression == nil {
		return png.DefaultCompression
	}
	switch {
	case *ops.Compression == 0:
		return png.NoCompression
	case *ops.Compression <= 3:
		return png.BestSpeed
	case *ops.Compression <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

func textPosition(width, height int, position string, fontSize float64) (x, y, ax, ay float64) {
	padding := fontSize * 0.5
	w, h := float64(width), float64(height)

	switch strings.ToLower(position) {
	case "top-left":
		return padding, padding, 0, 0
	case "top-right":
		return w - padding, padding, 1, 0
	case "bottom-left":
		return padding, h - padding, 0, 1
	case "center":
		return w / 2, h / 2, 0.5, 0.5
	default:
		return w - padding, h - padding, 1, 1
	}
}

func overlayPosition(canvas, mark image.Rectangle, position string) image.Point {
	padding := 10
	cw, ch := canvas.Dx(), canvas.Dy()
	mw, mh := mark.Dx(), mark.Dy()

	switch strings.ToLower(position) {
	case "top-left":
		return image.Pt(padding, padding)
	case "top-right":
		return image.Pt(cw-mw-padding, padding)
	case "bottom-left":
		return image.Pt(padding, ch-mh-padding)
	case "center":
		return image.Pt((cw-mw)/2, (ch-mh)/2)
	default:
		return image.Pt(cw-mw-padding, ch-mh-padding)
	}
}

func parseHexColor(s string) (r, g, b float64) {
	if len(s) != 7 || s[0] != '#' {
		return 1, 1, 1
	}
	var ri, gi, bi uint8
	if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &ri, &gi, &bi); err != nil {
		return 1, 1, 1
	}
	return float64(ri) / 255, float64(gi) / 255, float64(bi) / 255
}

func rgbToHSL(r8, g8, b8 uint8) (h, s, l float64) {
	r := float64(r8) / 255
	g := float64(g8) / 255
	b := float64(b8) / 255

	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	l = (maxC + minC) / 2

	if maxC == minC {
		return 0, 0, l
	}

	d := maxC - minC
	if l > 0.5 {
		s = d / (2 - maxC - minC)
	} else {
		s = d / (maxC + minC)
	}

	switch maxC {
	case r:
		h = (g - b) / d
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	return h * 60, s, l
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := clampByte(l * 255)
		return v, v, v
	}

	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	hk := h / 360

	return clampByte(hueComponent(p, q, hk+1.0/3) * 255),
		clampByte(hueComponent(p, q, hk) * 255),
		clampByte(hueComponent(p, q, hk-1.0/3) * 255)
}

func hueComponent(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 1.0/2:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	default:
		return p
	}
}

func luminance(r, g, b uint8) uint8 {
	return clampByte(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b))
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(math.Round(v))
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
