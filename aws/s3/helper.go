package s3

import (
	"fmt"
	"net/url"
	"strings"
)

// IsS3URL is true for locations of the form s3://<bucket>/<key>.
func IsS3URL(location string) bool {
	return strings.HasPrefix(strings.ToLower(location), "s3://")
}

// ParseURL expects s3Url to be of the form [s3://]<bucket>/<key>
// It returns the bucket name and key. The key may be empty.
func ParseURL(s3Url string) (bucket string, key string, err error) {
	u, err := url.Parse(s3Url)
	if err != nil {
		return "", "", fmt.Errorf("error parsing S3 URL: %v", err)
	}
	if u.Scheme != "" && u.Scheme != "s3" {
		return "", "", fmt.Errorf("expected S3 URL scheme %q but got %q", "s3", u.Scheme)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("S3 URL %q has no bucket name", s3Url)
	}
	return u.Host, strings.TrimLeft(u.Path, "/"), nil
}
