package output

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/tanq16/rangeload/internal/downloader"
	"golang.org/x/term"
)

func progressBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	if total <= 0 {
		total = 1
	}
	current = max(0, min(current, total))
	percent := float64(current) / float64(total)
	filled := max(0, min(int(percent*float64(width)), width))
	bar := StyleSymbols["bullet"] + strings.Repeat(StyleSymbols["hline"], filled) + strings.Repeat(" ", width-filled) + StyleSymbols["bullet"]
	return debugStyle.Render(fmt.Sprintf("%s %.1f%%", bar, percent*100))
}

// segmentStrip draws one cell per segment.
func segmentStrip(segments []downloader.Progress) string {
	var b strings.Builder
	for _, seg := range segments {
		switch {
		case seg.Failed:
			b.WriteString(errorStyle.Render(StyleSymbols["fail"]))
		case seg.Value >= 1:
			b.WriteString(successStyle.Render(string(segmentLevels[len(segmentLevels)-1])))
		default:
			level := int(seg.Value * float64(len(segmentLevels)-1))
			level = max(0, min(level, len(segmentLevels)-2))
			b.WriteString(pendingStyle.Render(string(segmentLevels[level])))
		}
	}
	return b.String()
}

func statusIndicator(status downloader.EntryStatus) string {
	switch status {
	case downloader.StatusSucceeded:
		return successStyle.Render(StyleSymbols["pass"])
	case downloader.StatusFailed:
		return errorStyle.Render(StyleSymbols["fail"])
	case downloader.StatusPartiallyFailed:
		return warningStyle.Render(StyleSymbols["warning"])
	case downloader.StatusPending, downloader.StatusSizing:
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

func getTerminalHeight() int {
	_, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || height <= 0 {
		return 24
	}
	return height
}

func wrapText(text string, width int) []string {
	if width <= 10 {
		width = 80
	}
	if utf8.RuneCountInString(text) <= width {
		return []string{text}
	}
	var lines []string
	runes := []rune(text)
	for len(runes) > width {
		lines = append(lines, string(runes[:width]))
		runes = runes[width:]
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}
