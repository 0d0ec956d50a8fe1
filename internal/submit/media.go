package submit

import (
	"path/filepath"
	"strings"

	"github.com/wailsapp/mimetype"
)

// allowedMIME lists the media types the backend can decode.
var allowedMIME = []string{
	"video/mp4",
	"video/quicktime",
	"video/x-msvideo",
	"video/x-matroska",
	"video/webm",
	"audio/mpeg",
	"audio/wav",
	"audio/x-wav",
	"audio/mp4",
	"audio/x-m4a",
	"audio/aac",
	"audio/ogg",
	"audio/flac",
}

// extensionMIME is the fallback when content sniffing is inconclusive.
var extensionMIME = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

// detectMIME sniffs path and returns an allowed media type, or an error
// naming what was found.
func detectMIME(path string) (string, error) {
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return "", rejectFile("cannot read file: %v", err)
	}

	for _, allowed := range allowedMIME {
		if detected.Is(allowed) {
			return allowed, nil
		}
	}

	if isGeneric(detected.String()) {
		if byExt, ok := extensionMIME[strings.ToLower(filepath.Ext(path))]; ok {
			return byExt, nil
		}
	}
	return "", rejectFile("unsupported file type %s", detected.String())
}

// isGeneric reports whether sniffing failed to identify the content.
func isGeneric(mime string) bool {
	base, _, _ := strings.Cut(mime, ";")
	return base == "application/octet-stream"
}
