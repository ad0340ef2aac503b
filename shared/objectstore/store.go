package objectstore

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrObjectNotFound = errors.New("object not found")

const (
	uploadsPrefix = "uploads"
	resultsPrefix = "results"
	maxNameLength = 120
)

// Store is a bucket-scoped blob store
type Store interface {
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) error
	Download(ctx context.Context, objectPath string) ([]byte, error)
	SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, objectPaths ...string) error
}

// UploadPath returns a fresh object path for a user's input file
func UploadPath(userID, filename string) string {
	return path.Join(uploadsPrefix, userID, uuid.NewString()+"-"+SanitizeName(filename))
}

// ResultPath returns the object path of a job's output
func ResultPath(userID, jobID, filename string) string {
	return path.Join(resultsPrefix, userID, jobID, SanitizeName(filename))
}

// OwnedBy reports whether objectPath is an input uploaded by userID
func OwnedBy(objectPath, userID string) bool {
	if userID == "" || objectPath == "" {
		return false
	}
	if strings.Contains(objectPath, "..") || strings.HasPrefix(objectPath, "/") {
		return false
	}
	prefix := uploadsPrefix + "/" + userID + "/"
	return strings.HasPrefix(path.Clean(objectPath), prefix) && len(objectPath) > len(prefix)
}

// BaseName strips the directory and the upload id prefix from an object path
func BaseName(objectPath string) string {
	name := path.Base(objectPath)
	if len(name) > 37 && name[36] == '-' {
		if _, err := uuid.Parse(name[:36]); err == nil {
			return name[37:]
		}
	}
	return name
}

// SanitizeName keeps object names to a safe character set
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	if len(out) > maxNameLength {
		ext := path.Ext(out)
		if len(ext) > 10 {
			ext = ""
		}
		out = out[:maxNameLength-len(ext)] + ext
	}
	return out
}
