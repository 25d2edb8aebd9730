package objectclient

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseLocation resolves a document storage reference into bucket and key.
//
// Accepted forms:
//
//	path/to/file.pdf                                      key in defaultBucket
//	s3://bucket/path/to/file.pdf
//	https://bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf
//	https://minio.local:9000/bucket/path/to/file.pdf      path-style
func ParseLocation(ref, defaultBucket string) (bucket, key string, err error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", fmt.Errorf("empty storage path")
	}

	switch {
	case strings.HasPrefix(ref, "s3://"):
		rest := strings.TrimPrefix(ref, "s3://")
		bucket, key, _ = strings.Cut(rest, "/")

	case strings.HasPrefix(ref, "https://"), strings.HasPrefix(ref, "http://"):
		u, perr := url.Parse(ref)
		if perr != nil {
			return "", "", fmt.Errorf("invalid storage url %q: %w", ref, perr)
		}
		path := strings.TrimPrefix(u.Path, "/")
		if host, _, ok := strings.Cut(u.Hostname(), ".s3."); ok && host != "" {
			bucket, key = host, path
		} else {
			bucket, key, _ = strings.Cut(path, "/")
		}

	default:
		bucket, key = defaultBucket, strings.TrimPrefix(ref, "/")
	}

	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("storage path %q does not name a bucket and key", ref)
	}
	return bucket, key, nil
}
