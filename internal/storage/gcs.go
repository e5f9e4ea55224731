package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type GCSStore struct {
	client  *gcs.Client
	buckets map[string]string // logical name -> GCS bucket
}

func NewGCSStore(ctx context.Context, buckets map[string]string, opts ...option.ClientOption) (*GCSStore, error) {
	c, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GCSStore{client: c, buckets: buckets}, nil
}

func (s *GCSStore) Close() error { return s.client.Close() }

func (s *GCSStore) bucket(name string) string {
	if b, ok := s.buckets[name]; ok && b != "" {
		return b
	}
	return name
}

func (s *GCSStore) Upload(ctx context.Context, bucket, key, contentType string, r io.Reader) error {
	obj := s.client.Bucket(s.bucket(bucket)).Object(key)

	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	// listing images and avatars are public
	return obj.ACL().Set(ctx, gcs.AllUsers, gcs.RoleReader)
}

// Delete treats an already-missing object as deleted.
func (s *GCSStore) Delete(ctx context.Context, bucket, key string) error {
	err := s.client.Bucket(s.bucket(bucket)).Object(key).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (s *GCSStore) PublicURL(bucket, key string) string {
	if key == "" {
		return ""
	}
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}
	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket(bucket), strings.Join(segs, "/"))
}
