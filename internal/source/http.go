package source

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tanq16/rangeload/internal/utils"
)

type HTTPSource struct {
	client utils.HTTPDoer
	url    string
}

func NewHTTPSource(client utils.HTTPDoer, url string) *HTTPSource {
	return &HTTPSource{client: client, url: url}
}

func (s *HTTPSource) String() string {
	return s.url
}

func (s *HTTPSource) Probe(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating HEAD request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error executing HEAD request: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatusCode(resp.StatusCode); err != nil {
		return 0, err
	}
	if resp.ContentLength < 0 {
		return 0, ErrNoContentLength
	}
	return resp.ContentLength, nil
}

func (s *HTTPSource) OpenRange(ctx context.Context, start, end int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating GET request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	req.Header.Set("Connection", "keep-alive")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error executing GET request: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusPartialContent:
		return resp.Body, nil
	case resp.StatusCode == http.StatusOK:
		// A full body is only correct when the range covers the whole resource.
		if resp.Header.Get("Content-Range") == "" && (start != 0 || resp.ContentLength != end-start+1) {
			resp.Body.Close()
			return nil, ErrRangeIgnored
		}
		return resp.Body, nil
	default:
		resp.Body.Close()
		if err := checkStatusCode(resp.StatusCode); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
}
