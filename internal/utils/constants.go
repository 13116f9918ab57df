package utils

import "regexp"

// OAuth scopes
const (
	ScopeReadonly         = "https://www.googleapis.com/auth/drive.readonly"
	ScopeMetadataReadonly = "https://www.googleapis.com/auth/drive.metadata.readonly"
)

// ServiceScopes are requested by every credential source. The service never writes to Drive.
var ServiceScopes = []string{ScopeReadonly}

// Required artifacts inside every BAT folder. Exact, case-sensitive names.
const (
	FileSpectrogram = "Spectrogram.jpg"
	FileCamera      = "Camera.jpg"
	FileSensor      = "Sensor.txt"
)

// RequiredFileSet lists the required artifacts in report order
var RequiredFileSet = []string{FileSpectrogram, FileCamera, FileSensor}

// IsRequiredFile reports whether name is exactly one of the required artifacts
func IsRequiredFile(name string) bool {
	for _, r := range RequiredFileSet {
		if r == name {
			return true
		}
	}
	return false
}

// BatIDPrefix is stripped from incoming BAT ids (BAT121 -> 121)
const BatIDPrefix = "BAT"

// BatFolderPattern matches folder names built from a FolderKey
var BatFolderPattern = regexp.MustCompile(`^SERVER\d+_CLIENT\d+_.+$`)

// Retry configuration
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	MaxRetryDelayMs     = 32000
)

// Drive paging
const DefaultPageSize = 100

// Schema version of CLI JSON output
const SchemaVersion = "1.0"

// Google Workspace MIME types
const (
	MimeTypeDocument     = "application/vnd.google-apps.document"
	MimeTypeSpreadsheet  = "application/vnd.google-apps.spreadsheet"
	MimeTypePresentation = "application/vnd.google-apps.presentation"
	MimeTypeDrawing      = "application/vnd.google-apps.drawing"
	MimeTypeForm         = "application/vnd.google-apps.form"
	MimeTypeScript       = "application/vnd.google-apps.script"
	MimeTypeFolder       = "application/vnd.google-apps.folder"
	MimeTypeShortcut     = "application/vnd.google-apps.shortcut"
)

// Content types served for downloaded artifacts
const (
	ContentTypeJPEG        = "image/jpeg"
	ContentTypePNG         = "image/png"
	ContentTypeText        = "text/plain"
	ContentTypeOctetStream = "application/octet-stream"
)

// ExtensionContentTypes maps lower-case file extensions to served content types
var ExtensionContentTypes = map[string]string{
	".jpg":  ContentTypeJPEG,
	".jpeg": ContentTypeJPEG,
	".png":  ContentTypePNG,
	".txt":  ContentTypeText,
}

// IsWorkspaceMimeType checks if a MIME type is a Google Workspace type
func IsWorkspaceMimeType(mimeType string) bool {
	switch mimeType {
	case MimeTypeDocument, MimeTypeSpreadsheet, MimeTypePresentation,
		MimeTypeDrawing, MimeTypeForm, MimeTypeScript, MimeTypeFolder, MimeTypeShortcut:
		return true
	}
	return false
}
