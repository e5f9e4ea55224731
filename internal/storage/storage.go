package storage

import (
	"context"
	"io"
	"path"
	"strconv"
	"strings"
	"time"
)

// ObjectStore addresses objects by logical bucket ("services", "avatars") and
// a relative key. Rows only ever store the key.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key, contentType string, r io.Reader) error
	Delete(ctx context.Context, bucket, key string) error
	PublicURL(bucket, key string) string
}

// Deleter is the narrow slice of ObjectStore the cleanup paths need.
type Deleter interface {
	Delete(ctx context.Context, bucket, key string) error
}

// ObjectKey builds "<owner>/<unix_ms>.<ext>" from the uploaded file name.
func ObjectKey(owner, filename string, now time.Time) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if ext == "" {
		ext = "bin"
	}
	return owner + "/" + strconv.FormatInt(now.UnixMilli(), 10) + "." + ext
}
