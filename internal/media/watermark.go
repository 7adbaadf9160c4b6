package media

import (
	"encoding/json"
	"fmt"
)

// WatermarkKind discriminates the two watermark variants.
type WatermarkKind string

const (
	WatermarkText  WatermarkKind = "text"
	WatermarkImage WatermarkKind = "image"
)

// Watermark is a tagged union: exactly one of Text or Image is set, matching
// Kind. The executor switches exhaustively on Kind instead of probing fields.
type Watermark struct {
	Kind  WatermarkKind
	Text  *TextWatermark
	Image *ImageWatermark
}

type TextWatermark struct {
	Text       string  `json:"text"`
	FontSize   int     `json:"fontSize,omitempty"`
	FontFamily string  `json:"fontFamily,omitempty"`
	Color      string  `json:"color,omitempty"`
	Opacity    float64 `json:"opacity,omitempty"`
	Position   string  `json:"position"`
	OffsetX    int     `json:"offsetX,omitempty"`
	OffsetY    int     `json:"offsetY,omitempty"`
}

type ImageWatermark struct {
	Path     string  `json:"path"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Opacity  float64 `json:"opacity,omitempty"`
	Position string  `json:"position"`
	OffsetX  int     `json:"offsetX,omitempty"`
	OffsetY  int     `json:"offsetY,omitempty"`
}

type watermarkEnvelope struct {
	Type WatermarkKind `json:"type"`

	Text       string  `json:"text,omitempty"`
	FontSize   int     `json:"fontSize,omitempty"`
	FontFamily string  `json:"fontFamily,omitempty"`

	Path   string `json:"path,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`

	Color    string  `json:"color,omitempty"`
	Opacity  float64 `json:"opacity,omitempty"`
	Position string  `json:"position,omitempty"`
	OffsetX  int     `json:"offsetX,omitempty"`
	OffsetY  int     `json:"offsetY,omitempty"`
}

func (w *Watermark) UnmarshalJSON(data []byte) error {
	var env watermarkEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	switch env.Type {
	case WatermarkText:
		w.Kind = WatermarkText
		w.Text = &TextWatermark{
			Text:       env.Text,
			FontSize:   env.FontSize,
			FontFamily: env.FontFamily,
			Color:      env.Color,
			Opacity:    env.Opacity,
			Position:   env.Position,
			OffsetX:    env.OffsetX,
			OffsetY:    env.OffsetY,
		}
	case WatermarkImage:
		w.Kind = WatermarkImage
		w.Image = &ImageWatermark{
			Path:     env.Path,
			Width:    env.Width,
			Height:   env.Height,
			Opacity:  env.Opacity,
			Position: env.Position,
			OffsetX:  env.OffsetX,
			OffsetY:  env.OffsetY,
		}
	default:
		return fmt.Errorf("watermark: unknown type %q", env.Type)
	}
	return nil
}

func (w Watermark) MarshalJSON() ([]byte, error) {
	env := watermarkEnvelope{Type: w.Kind}

	switch w.Kind {
	case WatermarkText:
		if w.Text == nil {
			return nil, fmt.Errorf("watermark: text variant missing payload")
		}
		env.Text = w.Text.Text
		env.FontSize = w.Text.FontSize
		env.FontFamily = w.Text.FontFamily
		env.Color = w.Text.Color
		env.Opacity = w.Text.Opacity
		env.Position = w.Text.Position
		env.OffsetX = w.Text.OffsetX
		env.OffsetY = w.Text.OffsetY
	case WatermarkImage:
		if w.Image == nil {
			return nil, fmt.Errorf("watermark: image variant missing payload")
		}
		env.Path = w.Image.Path
		env.Width = w.Image.Width
		env.Height = w.Image.Height
		env.Opacity = w.Image.Opacity
		env.Position = w.Image.Position
		env.OffsetX = w.Image.OffsetX
		env.OffsetY = w.Image.OffsetY
	default:
		return nil, fmt.Errorf("watermark: unknown kind %q", w.Kind)
	}

	return json.Marshal(env)
}
