package validate

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mediamill/mediamill/internal/apperror"
	"github.com/mediamill/mediamill/internal/media"
)

// FileInfo carries the declared attributes of an uploaded file. Declared
// values are cross-checked against the bytes on disk.
type FileInfo struct {
	Path         string
	OriginalName string
	MimeType     string
	Size         int64
}

// SizeLimits bound the admissible file size per media type.
type SizeLimits struct {
	Min int64
	Max int64
}

var (
	ImageSizeLimits = SizeLimits{Min: 100, Max: 100 << 20}
	VideoSizeLimits = SizeLimits{Min: 1024, Max: 500 << 20}
)

const (
	maxFilenameLength = 255

	// headerScanBytes is how much of the file is read for the signature scan
	// and magic-byte checks.
	headerScanBytes = 2048

	// atomScanBytes is the window searched for MP4/MOV top-level atoms.
	atomScanBytes = 100
)

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

var videoMimeTypes = map[string]bool{
	"video/mp4":       true,
	"video/webm":      true,
	"video/quicktime": true,
	"video/x-msvideo": true,
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mov":  true,
	".avi":  true,
}

var dangerousExtensions = map[string]bool{
	".exe": true,
	".bat": true,
	".cmd": true,
	".com": true,
	".scr": true,
	".msi": true,
	".dll": true,
	".sh":  true,
	".php": true,
	".pl":  true,
	".py":  true,
	".js":  true,
	".jar": true,
	".vbs": true,
	".ps1": true,
}

// mimeToExtensions is the fixed table used for the declared-type consistency
// check: the declared extension must appear under the declared mime type.
var mimeToExtensions = map[string][]string{
	"image/jpeg":      {".jpg", ".jpeg"},
	"image/png":       {".png"},
	"image/gif":       {".gif"},
	"image/webp":      {".webp"},
	"image/bmp":       {".bmp"},
	"video/mp4":       {".mp4"},
	"video/webm":      {".webm"},
	"video/quicktime": {".mov"},
	"video/x-msvideo": {".avi"},
}

// dangerousSignatures are byte markers of executables, scripts and archives
// that must never reach the transform engine, scanned over the file header.
// AtStart signatures only match at offset zero to keep false positives down.
var dangerousSignatures = []struct {
	Marker  []byte
	AtStart bool
	Name    string
}{
	{Marker: []byte{'M', 'Z'}, AtStart: true, Name: "dos-executable"},
	{Marker: []byte{0x7F, 'E', 'L', 'F'}, AtStart: true, Name: "elf-executable"},
	{Marker: []byte{'P', 'K', 0x03, 0x04}, AtStart: true, Name: "zip-archive"},
	{Marker: []byte{'#', '!'}, AtStart: true, Name: "shell-script"},
	{Marker: []byte("<?php"), AtStart: false, Name: "php-script"},
	{Marker: []byte("<script"), AtStart: false, Name: "html-script"},
	{Marker: []byte{0xCA, 0xFE, 0xBA, 0xBE}, AtStart: true, Name: "java-class"},
}

// Input runs the file-level admissibility checks for the given media type, in
// a fixed order, short-circuiting on the first failure. A nil return means the
// file may be enqueued; any error is a *apperror.Error and the caller must
// delete the uploaded file without enqueuing a job.
func Input(mediaType media.Type, info FileInfo) error {
	if err := checkFilename(info.OriginalName); err != nil {
		return err
	}
	if err := checkSize(mediaType, info.Size); err != nil {
		return err
	}
	if err := checkDeclaredType(mediaType, info); err != nil {
		return err
	}

	header, err := readHeader(info.Path)
	if err != nil {
		return err
	}

	if err := scanSignatures(header); err != nil {
		return err
	}
	if err := checkMagicBytes(info.MimeType, header); err != nil {
		return err
	}
	if mediaType == media.TypeVideo {
		if err := checkContainer(info.MimeType, header); err != nil {
			return err
		}
	}
	return nil
}

func checkFilename(name string) error {
	if name == "" {
		return apperror.ErrInvalidFilename
	}
	if len(name) > maxFilenameLength {
		return apperror.ErrFilenameTooLong
	}
	if strings.ContainsRune(name, 0) {
		return apperror.ErrInvalidFilename
	}
	return nil
}

func checkSize(mediaType media.Type, size int64) error {
	limits := ImageSizeLimits
	if mediaType == media.TypeVideo {
		limits = VideoSizeLimits
	}
	if size < limits.Min {
		return apperror.ErrFileTooSmall
	}
	if size > limits.Max {
		return apperror.ErrFileTooLarge
	}
	return nil
}

func checkDeclaredType(mediaType media.Type, info FileInfo) error {
	ext := strings.ToLower(filepath.Ext(info.OriginalName))

	if dangerousExtensions[ext] {
		return apperror.ErrDangerousExtension
	}

	mimes, exts := imageMimeTypes, imageExtensions
	if mediaType == media.TypeVideo {
		mimes, exts = videoMimeTypes, videoExtensions
	}

	if !mimes[strings.ToLower(info.MimeType)] {
		return apperror.ErrInvalidMimeType
	}
	if !exts[ext] {
		return apperror.ErrInvalidExtension
	}

	for _, allowed := range mimeToExtensions[strings.ToLower(info.MimeType)] {
		if ext == allowed {
			return nil
		}
	}
	return apperror.ErrTypeMismatch
}

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrMissingFiles)
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, headerScanBytes)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, apperror.Wrap(err, apperror.ErrMissingFiles)
	}
	return header[:n], nil
}

func scanSignatures(header []byte) error {
	for _, sig := range dangerousSignatures {
		if sig.AtStart {
			if bytes.HasPrefix(header, sig.Marker) {
				return apperror.Wrap(fmt.Errorf("signature %s detected", sig.Name), apperror.ErrMaliciousContent)
			}
			continue
		}
		if bytes.Contains(bytes.ToLower(header), sig.Marker) {
			return apperror.Wrap(fmt.Errorf("signature %s detected", sig.Name), apperror.ErrMaliciousContent)
		}
	}
	return nil
}

func checkMagicBytes(mimeType string, header []byte) error {
	ok := false
	switch strings.ToLower(mimeType) {
	case "image/jpeg":
		ok = bytes.HasPrefix(header, []byte{0xFF, 0xD8, 0xFF})
	case "image/png":
		ok = bytes.HasPrefix(header, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A})
	case "image/gif":
		ok = bytes.HasPrefix(header, []byte("GIF87a")) || bytes.HasPrefix(header, []byte("GIF89a"))
	case "image/webp":
		ok = len(header) >= 12 && bytes.HasPrefix(header, []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP"))
	case "image/bmp":
		ok = bytes.HasPrefix(header, []byte("BM"))
	case "video/mp4", "video/quicktime":
		// MP4/MOV start with a size-prefixed atom, so ftyp/moov can sit at
		// any small offset rather than byte zero.
		window := header
		if len(window) > atomScanBytes {
			window = window[:atomScanBytes]
		}
		ok = bytes.Contains(window, []byte("ftyp")) || bytes.Contains(window, []byte("moov"))
	case "video/x-msvideo":
		ok = len(header) >= 12 && bytes.HasPrefix(header, []byte("RIFF")) && bytes.Equal(header[8:12], []byte("AVI "))
	case "video/webm":
		ok = bytes.HasPrefix(header, []byte{0x1A, 0x45, 0xDF, 0xA3})
	default:
		return apperror.ErrInvalidMimeType
	}

	if !ok {
		return apperror.ErrInvalidFileHeader
	}
	return nil
}

// checkContainer validates minimal container structure for video formats. The
// magic-byte check has already matched the outer signature; this looks for the
// chunks a playable file must carry.
func checkContainer(mimeType string, header []byte) error {
	switch strings.ToLower(mimeType) {
	case "video/mp4", "video/quicktime":
		// ftyp or moov was already located by the magic check.
		return nil
	case "video/x-msvideo":
		if !bytes.Contains(header, []byte("LIST")) && !bytes.Contains(header, []byte("hdrl")) {
			return apperror.ErrInvalidContainer
		}
	case "video/webm":
		if !bytes.Contains(header, []byte("webm")) && !bytes.Contains(header, []byte("matroska")) {
			return apperror.ErrInvalidContainer
		}
	}
	return nil
}
