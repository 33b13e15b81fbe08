package dialog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	fetchTimeout  = 30 * time.Second
	maxPhotoBytes = 20 << 20
)

// HTTPFetcher downloads photos from the messenger's media storage.
type HTTPFetcher struct {
	Client *http.Client
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: fetchTimeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: status %d", resp.StatusCode)
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, io.LimitReader(resp.Body, maxPhotoBytes+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > maxPhotoBytes {
		err = fmt.Errorf("download: photo larger than %d bytes", maxPhotoBytes)
	}
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}
