package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRangeHTTPClientInvalidProxy(t *testing.T) {
	c := NewRangeHTTPClient(HTTPClientConfig{ProxyURL: "http://[::1"})
	transport, ok := c.client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("transport = %T", c.client.Transport)
	}
	if transport.Proxy != nil {
		t.Error("proxy set from an invalid URL")
	}
	if c.Config().Timeout != 60*time.Second || c.Config().KATimeout != 90*time.Second {
		t.Errorf("defaults not applied: %+v", c.Config())
	}
}

func TestRangeHTTPClientHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()
	c := NewRangeHTTPClient(HTTPClientConfig{
		Timeout: 5 * time.Second,
		Headers: ParseHeaderArgs([]string{"Range: bytes=0-", "Authorization: Bearer t"}),
	})
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Range", "bytes=10-19")
	resp, err := c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if r := got.Get("Range"); r != "bytes=10-19" {
		t.Errorf("Range = %q, want the request's own range", r)
	}
	if a := got.Get("Authorization"); a != "Bearer t" {
		t.Errorf("Authorization = %q", a)
	}
	if ua := got.Get("User-Agent"); ua != ToolUserAgent {
		t.Errorf("User-Agent = %q", ua)
	}
}
