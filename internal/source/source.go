// Package source provides the byte transports a download can read from.
//
// Every transport satisfies Source: one size probe per resource and one ranged
// read per segment. The download engine only sees this interface, so plain
// HTTP, HTTPS and S3 objects are interchangeable.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tanq16/rangeload/internal/utils"
)

var (
	ErrNoContentLength = errors.New("source: no usable Content-Length")
	ErrRangeIgnored    = errors.New("source: server ignored the range restriction")
	ErrNotFound        = errors.New("source: resource not found")
	ErrForbidden       = errors.New("source: access forbidden")
	ErrUnauthorized    = errors.New("source: unauthorized")
	ErrServerError     = errors.New("source: server error")
)

// Source is the capability the download engine needs from a transport.
type Source interface {
	// Probe returns the total byte length of the resource.
	Probe(ctx context.Context) (int64, error)
	// OpenRange streams the inclusive byte range [start, end].
	OpenRange(ctx context.Context, start, end int64) (io.ReadCloser, error)
	// String names the resource for logs.
	String() string
}

// Factory builds sources for URLs, sharing clients between them.
type Factory struct {
	http *utils.RangeHTTPClient
	s3   *s3Clients
}

func NewFactory(httpClient *utils.RangeHTTPClient, s3cfg utils.S3Config) *Factory {
	return &Factory{
		http: httpClient,
		s3:   newS3Clients(s3cfg),
	}
}

// Resolve dispatches on the URL scheme.
func (f *Factory) Resolve(ctx context.Context, rawURL string) (Source, error) {
	kind, err := utils.DetermineSourceType(rawURL)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "s3":
		if _, _, err := ParseS3URL(rawURL); err != nil {
			return nil, err
		}
		client, err := f.s3.get(ctx)
		if err != nil {
			return nil, err
		}
		src, err := NewS3Source(client, rawURL)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return NewHTTPSource(f.http, rawURL), nil
	}
}

func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == 404:
		return ErrNotFound
	case code == 403:
		return ErrForbidden
	case code == 401:
		return ErrUnauthorized
	case code >= 500:
		return fmt.Errorf("%w: %d", ErrServerError, code)
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}
