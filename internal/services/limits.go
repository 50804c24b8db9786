package services

import (
	"mime"
	"path"
	"strings"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
)

// FileUpload is one file received from a client.
type FileUpload struct {
	FileName    string
	ContentType string
	Language    string
	Data        []byte
}

// UploadLimits are the per-user admission rules checked before any side effect.
type UploadLimits struct {
	MaxDocuments     int
	MaxFileSize      int64
	AllowedMimeTypes []string
}

func NewUploadLimits(cfg *config.Config) UploadLimits {
	return UploadLimits{
		MaxDocuments:     cfg.MaxDocuments,
		MaxFileSize:      cfg.MaxFileSize,
		AllowedMimeTypes: cfg.AllowedMimeTypes,
	}
}

// checkCount rejects adding n documents to a user who already has current.
// The check is not atomic with the insert that follows, so concurrent uploads
// can overshoot MaxDocuments.
func (l UploadLimits) checkCount(current, n int) error {
	if l.MaxDocuments > 0 && current+n > l.MaxDocuments {
		return core.NewValidationError("documents", "limit of %d documents reached (have %d, adding %d)", l.MaxDocuments, current, n)
	}
	return nil
}

// normalize validates f and fills in its media type.
func (l UploadLimits) normalize(f *FileUpload) error {
	f.FileName = strings.TrimSpace(path.Base(strings.ReplaceAll(f.FileName, "\\", "/")))
	if f.FileName == "" || f.FileName == "." || f.FileName == "/" {
		return core.NewValidationError("file_name", "file name is required")
	}
	if len(f.Data) == 0 {
		return core.NewValidationError("file", "%s is empty", f.FileName)
	}
	if l.MaxFileSize > 0 && int64(len(f.Data)) > l.MaxFileSize {
		return core.NewValidationError("file", "%s is %d bytes, limit is %d", f.FileName, len(f.Data), l.MaxFileSize)
	}

	ct := f.ContentType
	if ct == "" || ct == "application/octet-stream" {
		ct = mime.TypeByExtension(path.Ext(f.FileName))
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return core.NewValidationError("content_type", "cannot determine type of %s", f.FileName)
	}
	if !l.allowed(mediaType) {
		return core.NewValidationError("content_type", "%s is not supported", mediaType)
	}
	f.ContentType = mediaType
	return nil
}

func (l UploadLimits) allowed(mediaType string) bool {
	if len(l.AllowedMimeTypes) == 0 {
		return true
	}
	for _, m := range l.AllowedMimeTypes {
		if strings.EqualFold(m, mediaType) {
			return true
		}
	}
	return false
}
