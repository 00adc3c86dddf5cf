package utils

import (
	"errors"
	"regexp"
)

const DefaultBufferSize = 32 * 1024 // 32KB per read, one progress event each
const TempDirName = ".rangeload-temp"
const LogFile = ".rangeload.log"
const ToolUserAgent = "rangeload/1.0"

var (
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
	ErrInvalidURL        = errors.New("invalid URL")
)

// <base>.<entry>.part<index>-<attempt>
var tempNameRegex = regexp.MustCompile(`^(.+)\.([0-9a-f]{8})\.part(\d+)-(\d+)$`)
var fileNameRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

// Local-only User-Agent list
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:136.0) Gecko/20100101 Firefox/136.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.3 Safari/605.1.15",
	"curl/8.7.1",
	"Wget/1.21.4",
}
