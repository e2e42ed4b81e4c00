package storage

import (
	"path/filepath"
	"strings"
)

// audioTypes maps supported audio extensions to the MIME type they are served with
var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".webm": "audio/webm",
	".aac":  "audio/aac",
	".wma":  "audio/x-ms-wma",
}

// ValidateAudioFormat checks if the file format is supported
func ValidateAudioFormat(filename string) bool {
	_, ok := audioTypes[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// AudioContentType returns the MIME type of an audio file, or
// application/octet-stream for an unknown extension
func AudioContentType(filename string) string {
	if t, ok := audioTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return t
	}
	return "application/octet-stream"
}
