package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mediamill/mediamill/internal/media"
)

// fakeTransformer lets executor tests control probe results and output
// side effects without a real engine.
type fakeTransformer struct {
	probeMeta *Metadata
	probeErr  error

	transformMeta *Metadata
	transformErr  error
	writeOutput   []byte
	gotPlan       *Plan
}

func (ft *fakeTransformer) Probe(ctx context.Context, path string) (*Metadata, error) {
	if ft.probeErr != nil {
		return nil, ft.probeErr
	}
	return ft.probeMeta, nil
}

func (ft *fakeTransformer) Transform(ctx context.Context, inputPath, outputPath string, plan *Plan) (*Metadata, error) {
	ft.gotPlan = plan
	if ft.transformErr != nil {
		return nil, ft.transformErr
	}
	if ft.writeOutput != nil {
		if err := os.WriteFile(outputPath, ft.writeOutput, 0o644); err != nil {
			return nil, err
		}
	}
	return ft.transformMeta, nil
}

func testJob(dir string) *media.Job {
	return &media.Job{
		ID:           "job-1",
		Media:        media.TypeImage,
		FilePath:     filepath.Join(dir, "input.jpg"),
		OriginalName: "input.jpg",
		FileSize:     2048,
		MimeType:     "image/jpeg",
	}
}

func TestQualityToCRF(t *testing.T) {
	tests := []struct {
		quality int
		want    int
	}{
		{100, 0},
		{1, 50},
		{50, 26},
		{80, 10},
		{0, 50},   // clamped up to 1
		{150, 0},  // clamped down to 100
	}

	for _, tt := range tests {
		if got := QualityToCRF(tt.quality); got != tt.want {
			t.Errorf("QualityToCRF(%d) = %d, want %d", tt.quality, got, tt.want)
		}
	}
}

func TestExecute_DefaultsAndResult(t *testing.T) {
	dir := t.TempDir()
	ft := &fakeTransformer{
		probeMeta:     &Metadata{Width: 1000, Height: 800, Format: "jpeg"},
		transformMeta: &Metadata{Width: 300, Height: 300, Format: "jpeg"},
		writeOutput:   []byte("output bytes"),
	}
	e := NewImageExecutor(ft, dir)

	job := testJob(dir)
	job.Operations = &media.OperationSet{Resize: &media.ResizeParams{Width: 300, Height: 300}}

	result, err := e.Execute(context.Background(), job)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if ft.gotPlan.Format != "jpeg" || ft.gotPlan.Quality != 80 {
		t.Errorf("plan defaults = %s/%d, want jpeg/80", ft.gotPlan.Format, ft.gotPlan.Quality)
	}
	if result.Width != 300 || result.Height != 300 {
		t.Errorf("result dims = %dx%d, want 300x300", result.Width, result.Height)
	}
	if result.ProcessedSize != int64(len("output bytes")) {
		t.Errorf("processed size = %d", result.ProcessedSize)
	}
	if len(result.Operations) != 2 || result.Operations[0] != "resize" || result.Operations[1] != "encode" {
		t.Errorf("operations = %v, want [resize encode]", result.Operations)
	}
	if !strings.HasPrefix(filepath.Base(result.OutputPath), "input_") {
		t.Errorf("output name %q does not carry the original base name", result.OutputPath)
	}
}

func TestExecute_UniqueOutputNames(t *testing.T) {
	e := NewImageExecutor(nil, t.TempDir())

	seen := make(map[string]bool)
	for range [50]struct{}{} {
		path := e.outputPath("photo.png", "png")
		if seen[path] {
			t.Fatalf("duplicate output path %q", path)
		}
		seen[path] = true
	}
}

func TestExecute_ProbeFailureIsCorruptedMedia(t *testing.T) {
	ft := &fakeTransformer{probeErr: errors.New("bad header")}
	e := NewImageExecutor(ft, t.TempDir())

	_, err := e.Execute(context.Background(), testJob(t.TempDir()))
	if !errors.Is(err, ErrCorruptedMedia) {
		t.Fatalf("Execute() error = %v, want ErrCorruptedMedia", err)
	}
}

func TestExecute_ImageCropClamped(t *testing.T) {
	dir := t.TempDir()
	ft := &fakeTransformer{
		probeMeta:     &Metadata{Width: 500, Height: 400},
		transformMeta: &Metadata{Width: 400, Height: 300},
		writeOutput:   []byte("x"),
	}
	e := NewImageExecutor(ft, dir)

	job := testJob(dir)
	job.Operations = &media.OperationSet{
		Crop: &media.CropParams{X: 100, Y: 100, Width: 900, Height: 900},
	}

	if _, err := e.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	crop := ft.gotPlan.Crop
	if crop.Width != 400 || crop.Height != 300 {
		t.Errorf("clamped crop = %dx%d, want 400x300", crop.Width, crop.Height)
	}
	if crop.X != 100 || crop.Y != 100 {
		t.Errorf("crop origin moved: %d,%d", crop.X, crop.Y)
	}
}

func TestExecute_VideoTrimPastDurationFails(t *testing.T) {
	dir := t.TempDir()
	ft := &fakeTransformer{
		probeMeta: &Metadata{Width: 1920, Height: 1080, Duration: 30},
	}
	e := NewVideoExecutor(ft, dir)

	job := testJob(dir)
	job.Media = media.TypeVideo
	job.Operations = &media.OperationSet{
		Crop: &media.CropParams{StartTime: 10, EndTime: 45},
	}

	_, err := e.Execute(context.Background(), job)
	if !errors.Is(err, ErrTimeExceedsDuration) {
		t.Fatalf("Execute() error = %v, want ErrTimeExceedsDuration", err)
	}
}

func TestExecute_VideoQualityMapsToCRF(t *testing.T) {
	dir := t.TempDir()
	quality := 80
	ft := &fakeTransformer{
		probeMeta:     &Metadata{Width: 1920, Height: 1080, Duration: 30},
		transformMeta: &Metadata{Width: 1920, Height: 1080, Duration: 30},
		writeOutput:   []byte("video"),
	}
	e := NewVideoExecutor(ft, dir)

	job := testJob(dir)
	job.Media = media.TypeVideo
	job.Operations = &media.OperationSet{Quality: &quality}

	if _, err := e.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if ft.gotPlan.CRF != 10 {
		t.Errorf("CRF = %d, want 10", ft.gotPlan.CRF)
	}
	if ft.gotPlan.Format != "mp4" {
		t.Errorf("format = %s, want mp4", ft.gotPlan.Format)
	}
}

func TestExecute_EmptyOutputFails(t *testing.T) {
	dir := t.TempDir()
	ft := &fakeTransformer{
		probeMeta:     &Metadata{Width: 100, Height: 100},
		transformMeta: &Metadata{Width: 100, Height: 100},
		writeOutput:   []byte{},
	}
	e := NewImageExecutor(ft, dir)

	_, err := e.Execute(context.Background(), testJob(dir))
	if !errors.Is(err, ErrEmptyOutput) {
		t.Fatalf("Execute() error = %v, want ErrEmptyOutput", err)
	}
}

func TestExecute_MissingOutputFails(t *testing.T) {
	dir := t.TempDir()
	ft := &fakeTransformer{
		probeMeta:     &Metadata{Width: 100, Height: 100},
		transformMeta: &Metadata{Width: 100, Height: 100},
		// writeOutput nil: transform "succeeds" but writes nothing
	}
	e := NewImageExecutor(ft, dir)

	_, err := e.Execute(context.Background(), testJob(dir))
	if !errors.Is(err, ErrEmptyOutput) {
		t.Fatalf("Execute() error = %v, want ErrEmptyOutput", err)
	}
}

func TestExecute_ZeroDimensionOutputFails(t *testing.T) {
	dir := t.TempDir()
	ft := &fakeTransformer{
		probeMeta:     &Metadata{Width: 100, Height: 100},
		transformMeta: &Metadata{Width: 0, Height: 0},
		writeOutput:   []byte("not empty"),
	}
	e := NewImageExecutor(ft, dir)

	_, err := e.Execute(context.Background(), testJob(dir))
	if !errors.Is(err, ErrZeroDimensions) {
		t.Fatalf("Execute() error = %v, want ErrZeroDimensions", err)
	}

	// The partial output must be gone.
	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "input_") {
			t.Errorf("partial output %q not removed", entry.Name())
		}
	}
}
