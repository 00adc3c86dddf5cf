package utils

import "time"

type HTTPClientConfig struct {
	Timeout        time.Duration // connection setup and response headers, never the body
	KATimeout      time.Duration
	ProxyURL       string
	ProxyUsername  string
	ProxyPassword  string
	UserAgent      string
	Headers        map[string]string
	HighThreadMode bool // advanced socket options for high concurrency
}

type S3Config struct {
	Profile         string
	Region          string
	Endpoint        string // custom endpoint for S3-compatible stores, path-style addressing
	AccessKeyID     string
	SecretAccessKey string
}

type DownloadEntry struct {
	Name string `yaml:"name"`
	URL  string `yaml:"link"`
}

type TempName struct {
	Base    string
	Entry   string
	Index   int
	Attempt int
}
