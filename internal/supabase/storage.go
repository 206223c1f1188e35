package supabase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	analysisSvc "figmant/internal/domain/services/analysis"
)

// StorageClient uploads objects to a Supabase storage bucket
type StorageClient struct {
	supabaseURL string
	serviceKey  string
	bucket      string
	httpClient  *http.Client
}

// NewStorageClient creates a storage client for bucket
func NewStorageClient(supabaseURL, serviceKey, bucket string) *StorageClient {
	return &StorageClient{
		supabaseURL: strings.TrimRight(supabaseURL, "/"),
		serviceKey:  serviceKey,
		bucket:      bucket,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// Upload stores body at path, overwriting any existing object, and returns
// its public URL
func (c *StorageClient) Upload(ctx context.Context, path, contentType string, body io.Reader) (*analysisSvc.StoredObject, error) {
	objectURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.supabaseURL, c.bucket, escapePath(path))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, objectURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return &analysisSvc.StoredObject{
		Path: path,
		URL:  c.PublicURL(path),
	}, nil
}

// PublicURL is the URL an object is served from when the bucket is public
func (c *StorageClient) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.supabaseURL, c.bucket, escapePath(path))
}

func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
