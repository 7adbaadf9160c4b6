package media

// OperationSet is the collection of transform operations requested for a job.
// Field order here has no bearing on execution: the pipeline applies
// operations in its own fixed stage order. Once validated the set is treated
// as immutable.
type OperationSet struct {
	Crop        *CropParams      `json:"crop,omitempty"`
	Resize      *ResizeParams    `json:"resize,omitempty"`
	Rotate      *float64         `json:"rotate,omitempty"`
	Flip        *bool            `json:"flip,omitempty"`
	Flop        *bool            `json:"flop,omitempty"`
	Brightness  *float64         `json:"brightness,omitempty"`
	Contrast    *float64         `json:"contrast,omitempty"`
	Saturation  *float64         `json:"saturation,omitempty"`
	Hue         *float64         `json:"hue,omitempty"`
	Gamma       *float64         `json:"gamma,omitempty"`
	Grayscale   *bool            `json:"grayscale,omitempty"`
	Sepia       *bool            `json:"sepia,omitempty"`
	Negate      *bool            `json:"negate,omitempty"`
	Normalize   *bool            `json:"normalize,omitempty"`
	Blur        *float64         `json:"blur,omitempty"`
	Sharpen     *float64         `json:"sharpen,omitempty"`
	Format      *string          `json:"format,omitempty"`
	Quality     *int             `json:"quality,omitempty"`
	Progressive *bool            `json:"progressive,omitempty"`
	Lossless    *bool            `json:"lossless,omitempty"`
	Compression *int             `json:"compression,omitempty"`
	Watermark   *Watermark       `json:"watermark,omitempty"`
}

// CropParams covers both media types. Images crop a pixel region; videos use
// the same operation key to trim a time range.
type CropParams struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`

	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
}

type ResizeParams struct {
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Fit    string `json:"fit,omitempty"`
}

// Names returns the operation keys present in the set, in declaration order.
// Used by validators to report unsupported keys; the pipeline never consults
// this ordering.
func (s *OperationSet) Names() []string {
	if s == nil {
		return nil
	}
	var names []string
	add := func(present bool, name string) {
		if present {
			names = append(names, name)
		}
	}
	add(s.Crop != nil, "crop")
	add(s.Resize != nil, "resize")
	add(s.Rotate != nil, "rotate")
	add(s.Flip != nil, "flip")
	add(s.Flop != nil, "flop")
	add(s.Brightness != nil, "brightness")
	add(s.Contrast != nil, "contrast")
	add(s.Saturation != nil, "saturation")
	add(s.Hue != nil, "hue")
	add(s.Gamma != nil, "gamma")
	add(s.Grayscale != nil, "grayscale")
	add(s.Sepia != nil, "sepia")
	add(s.Negate != nil, "negate")
	add(s.Normalize != nil, "normalize")
	add(s.Blur != nil, "blur")
	add(s.Sharpen != nil, "sharpen")
	add(s.Format != nil, "format")
	add(s.Quality != nil, "quality")
	add(s.Progressive != nil, "progressive")
	add(s.Lossless != nil, "lossless")
	add(s.Compression != nil, "compression")
	add(s.Watermark != nil, "watermark")
	return names
}

// Count returns how many operations the set specifies. A zero count is valid
// and means a pass-through re-encode at the default format and quality.
func (s *OperationSet) Count() int {
	return len(s.Names())
}
