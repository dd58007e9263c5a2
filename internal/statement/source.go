package statement

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Source fetches the raw bytes of an uploaded statement file.
type Source interface {
	Fetch(ctx context.Context, fileURL string) ([]byte, error)
}

// FetchError wraps a failed file fetch with the URL and, when
// available, the HTTP-style status code.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("could not fetch file by url %q: response code %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("could not fetch file by url %q: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// GCSSource fetches statement files stored in Google Cloud Storage by
// "gs://bucket/object" URI.
type GCSSource struct {
	client *storage.Client
}

// NewGCSSource creates a source backed by the given storage client.
func NewGCSSource(client *storage.Client) *GCSSource {
	return &GCSSource{client: client}
}

// Fetch downloads the object bytes for a gs:// URI.
func (s *GCSSource) Fetch(ctx context.Context, fileURL string) ([]byte, error) {
	bucket, object, err := splitGCSURI(fileURL)
	if err != nil {
		return nil, &FetchError{URL: fileURL, Err: err}
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, &FetchError{URL: fileURL, Err: fmt.Errorf("open object reader: %w", err)}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &FetchError{URL: fileURL, Err: fmt.Errorf("read object: %w", err)}
	}
	return data, nil
}

func splitGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// HTTPSource fetches statement files by public URL.
type HTTPSource struct {
	client *http.Client
}

// NewHTTPSource creates a source with a sane default timeout.
func NewHTTPSource() *HTTPSource {
	return &HTTPSource{client: &http.Client{Timeout: 2 * time.Minute}}
}

// Fetch downloads the file via GET. Non-2xx responses yield a
// FetchError carrying the response code.
func (s *HTTPSource) Fetch(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, &FetchError{URL: fileURL, Err: err}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: fileURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: fileURL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: fileURL, Err: fmt.Errorf("read response body: %w", err)}
	}
	return data, nil
}

// AutoSource dispatches by file reference scheme: gs:// URIs go to
// cloud storage, everything else is fetched over HTTP.
type AutoSource struct {
	GCS  *GCSSource
	HTTP *HTTPSource
}

// Fetch implements Source.
func (s *AutoSource) Fetch(ctx context.Context, fileURL string) ([]byte, error) {
	if strings.HasPrefix(fileURL, "gs://") {
		if s.GCS == nil {
			return nil, &FetchError{URL: fileURL, Err: fmt.Errorf("no cloud storage client configured")}
		}
		return s.GCS.Fetch(ctx, fileURL)
	}
	if s.HTTP == nil {
		return nil, &FetchError{URL: fileURL, Err: fmt.Errorf("no http client configured")}
	}
	return s.HTTP.Fetch(ctx, fileURL)
}
