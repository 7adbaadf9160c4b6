package validate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mediamill/mediamill/internal/apperror"
	"github.com/mediamill/mediamill/internal/media"
)

// writeTestFile creates a file whose content starts with the given header
// bytes, padded to the requested size.
func writeTestFile(t *testing.T, name string, header []byte, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)

	content := make([]byte, size)
	copy(content, header)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return path
}

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0}
var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

func TestInput_ValidJPEG(t *testing.T) {
	path := writeTestFile(t, "photo.jpg", jpegHeader, 4096)

	err := Input(media.TypeImage, FileInfo{
		Path:         path,
		OriginalName: "photo.jpg",
		MimeType:     "image/jpeg",
		Size:         4096,
	})
	if err != nil {
		t.Fatalf("Input() = %v, want nil", err)
	}
}

func TestInput_FilenameChecks(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantCode string
	}{
		{"empty filename", "", "INVALID_FILENAME"},
		{"too long", strings.Repeat("a", 300) + ".jpg", "FILENAME_TOO_LONG"},
		{"null byte", "pho\x00to.jpg", "INVALID_FILENAME"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Input(media.TypeImage, FileInfo{
				OriginalName: tt.filename,
				MimeType:     "image/jpeg",
				Size:         4096,
			})
			assertCode(t, err, tt.wantCode)
		})
	}
}

func TestInput_SizeLimits(t *testing.T) {
	tests := []struct {
		name      string
		mediaType media.Type
		size      int64
		wantCode  string
	}{
		{"image below minimum", media.TypeImage, 50, "FILE_TOO_SMALL"},
		{"image above maximum", media.TypeImage, 101 << 20, "FILE_TOO_LARGE"},
		{"video below minimum", media.TypeVideo, 512, "FILE_TOO_SMALL"},
		{"video above maximum", media.TypeVideo, 501 << 20, "FILE_TOO_LARGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, mime := "a.jpg", "image/jpeg"
			if tt.mediaType == media.TypeVideo {
				name, mime = "a.mp4", "video/mp4"
			}
			err := Input(tt.mediaType, FileInfo{
				OriginalName: name,
				MimeType:     mime,
				Size:         tt.size,
			})
			assertCode(t, err, tt.wantCode)
		})
	}
}

func TestInput_DeclaredTypeChecks(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		mime     string
		wantCode string
	}{
		{"dangerous extension", "run.exe", "image/jpeg", "DANGEROUS_EXTENSION"},
		{"script extension", "run.sh", "image/jpeg", "DANGEROUS_EXTENSION"},
		{"unknown mime", "a.jpg", "application/pdf", "INVALID_MIME_TYPE"},
		{"unknown extension", "a.tiff", "image/jpeg", "INVALID_EXTENSION"},
		{"mime extension mismatch", "a.png", "image/jpeg", "TYPE_MISMATCH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Input(media.TypeImage, FileInfo{
				OriginalName: tt.filename,
				MimeType:     tt.mime,
				Size:         4096,
			})
			assertCode(t, err, tt.wantCode)
		})
	}
}

func TestInput_MagicBytes(t *testing.T) {
	tests := []struct {
		name      string
		mediaType media.Type
		filename  string
		mime      string
		header    []byte
		wantCode  string
	}{
		{"jpeg header mismatch", media.TypeImage, "a.jpg", "image/jpeg", pngHeader, "INVALID_FILE_HEADER"},
		{"png ok", media.TypeImage, "a.png", "image/png", pngHeader, ""},
		{"gif ok", media.TypeImage, "a.gif", "image/gif", []byte("GIF89a"), ""},
		{"bmp ok", media.TypeImage, "a.bmp", "image/bmp", []byte("BM"), ""},
		{
			"webp ok", media.TypeImage, "a.webp", "image/webp",
			append([]byte("RIFF\x00\x00\x00\x00"), []byte("WEBP")...), "",
		},
		{
			"mp4 ftyp at offset", media.TypeVideo, "a.mp4", "video/mp4",
			[]byte{0, 0, 0, 0x20, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}, "",
		},
		{"mp4 without atoms", media.TypeVideo, "a.mp4", "video/mp4", []byte("garbage"), "INVALID_FILE_HEADER"},
		{"webm ebml ok", media.TypeVideo, "a.webm", "video/webm", append([]byte{0x1A, 0x45, 0xDF, 0xA3}, []byte("webm")...), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := 4096
			if tt.mediaType == media.TypeVideo {
				size = 8192
			}
			path := writeTestFile(t, tt.filename, tt.header, size)

			err := Input(tt.mediaType, FileInfo{
				Path:         path,
				OriginalName: tt.filename,
				MimeType:     tt.mime,
				Size:         int64(size),
			})
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Input() = %v, want nil", err)
				}
				return
			}
			assertCode(t, err, tt.wantCode)
		})
	}
}

func TestInput_DangerousSignatures(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
	}{
		{"dos executable", []byte("MZ\x90\x00")},
		{"elf executable", []byte{0x7F, 'E', 'L', 'F'}},
		{"shell script", []byte("#!/bin/bash")},
		{"zip archive", []byte("PK\x03\x04")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestFile(t, "a.jpg", tt.header, 4096)

			err := Input(media.TypeImage, FileInfo{
				Path:         path,
				OriginalName: "a.jpg",
				MimeType:     "image/jpeg",
				Size:         4096,
			})
			assertCode(t, err, "MALICIOUS_CONTENT")
		})
	}
}

func TestInput_EmbeddedScriptAnywhereInHeader(t *testing.T) {
	header := make([]byte, 0, 64)
	header = append(header, jpegHeader...)
	header = append(header, []byte("...<?php echo 1; ?>")...)
	path := writeTestFile(t, "a.jpg", header, 4096)

	err := Input(media.TypeImage, FileInfo{
		Path:         path,
		OriginalName: "a.jpg",
		MimeType:     "image/jpeg",
		Size:         4096,
	})
	assertCode(t, err, "MALICIOUS_CONTENT")
}

func TestInput_MissingFile(t *testing.T) {
	err := Input(media.TypeImage, FileInfo{
		Path:         filepath.Join(t.TempDir(), "nope.jpg"),
		OriginalName: "nope.jpg",
		MimeType:     "image/jpeg",
		Size:         4096,
	})
	assertCode(t, err, "MISSING_FILES")
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.Error, got %T: %v", err, err)
	}
	if appErr.Code != code {
		t.Fatalf("error code = %s, want %s (err: %v)", appErr.Code, code, err)
	}
}
