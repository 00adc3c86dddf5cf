package utils

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

// DetermineSourceType maps a URL scheme to the source implementation serving it.
func DetermineSourceType(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		if parsed.Host == "" {
			return "", fmt.Errorf("%w: no host in %s", ErrInvalidURL, rawURL)
		}
		return "http", nil
	case "s3":
		return "s3", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, parsed.Scheme)
	}
}

func ReadDownloadList(filePath string) ([]DownloadEntry, error) {
	log := GetLogger("config")
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %w", err)
	}
	var entries []DownloadEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %w", err)
	}
	for i, entry := range entries {
		if entry.URL == "" {
			return nil, fmt.Errorf("missing link for entry %d", i+1)
		}
		if entry.Name == "" {
			entries[i].Name = InferFileName(entry.URL)
		}
	}
	log.Debug().Int("count", len(entries)).Msg("Entries loaded from YAML")
	return entries, nil
}

// InferFileName takes the last path element of the URL, or "download".
func InferFileName(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		return "download"
	}
	return SanitizeFileName(name)
}

func SanitizeFileName(name string) string {
	return fileNameRegex.ReplaceAllString(name, "_")
}

func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

func (t TempName) String() string {
	return fmt.Sprintf("%s.%s.part%d-%d", t.Base, t.Entry, t.Index, t.Attempt)
}

func ParseTempName(name string) (TempName, error) {
	matches := tempNameRegex.FindStringSubmatch(name)
	if len(matches) != 5 {
		return TempName{}, fmt.Errorf("not a segment file: %s", name)
	}
	index, err := strconv.Atoi(matches[3])
	if err != nil {
		return TempName{}, fmt.Errorf("bad segment index in %s: %w", name, err)
	}
	attempt, err := strconv.Atoi(matches[4])
	if err != nil {
		return TempName{}, fmt.Errorf("bad attempt in %s: %w", name, err)
	}
	return TempName{Base: matches[1], Entry: matches[2], Index: index, Attempt: attempt}, nil
}

// Clean removes leftover segment files from the temp directory under dir and
// drops the directory once it is empty. It returns the removed file names.
func Clean(dir string) ([]TempName, error) {
	log := GetLogger("clean")
	tempDir := filepath.Join(dir, TempDirName)
	files, err := os.ReadDir(tempDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var removed []TempName
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		parsed, err := ParseTempName(file.Name())
		if err != nil {
			log.Debug().Str("file", file.Name()).Msg("Skipping unrelated file")
			continue
		}
		if err := os.Remove(filepath.Join(tempDir, file.Name())); err != nil {
			return removed, err
		}
		log.Debug().Str("entry", parsed.Entry).Int("segment", parsed.Index).Msg("Removed segment file")
		removed = append(removed, parsed)
	}
	remainingFiles, err := os.ReadDir(tempDir)
	if err != nil {
		return removed, err
	}
	if len(remainingFiles) == 0 {
		if err := os.Remove(tempDir); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
