package stageexec

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"voxclone/internal/logging"
)

const maxLineBytes = 1 << 20

// tqdm and similar bars print "desc:  42%|####      | 42/100".
var progressPattern = regexp.MustCompile(`^(.*?):?\s*(\d{1,3})%\|`)

// pumpLines forwards each line of r to logger unchanged. Progress-bar
// redraws are sampled so a training bar does not flood the log.
func pumpLines(r io.Reader, logger *slog.Logger, stream string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	scanner.Split(scanLinesOrReturns)
	sampler := newProgressSampler()
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if label, percent, ok := parseProgress(line); ok {
			if !sampler.shouldLog(label, percent) {
				continue
			}
			logger.Info("stage progress",
				logging.String(logging.FieldEventType, "stage_progress"),
				logging.String("stream", stream),
				logging.String("line", line),
				logging.Any(logging.FieldProgressPercent, percent),
			)
			continue
		}
		logger.Info("stage output",
			logging.String(logging.FieldEventType, "stage_output"),
			logging.String("stream", stream),
			logging.String("line", line),
		)
	}
	err := scanner.Err()
	// drain so the child never blocks on a full pipe after a scan error
	_, _ = io.Copy(io.Discard, r)
	return err
}

func parseProgress(line string) (string, float64, bool) {
	match := progressPattern.FindStringSubmatch(line)
	if match == nil {
		return "", 0, false
	}
	percent, err := strconv.Atoi(match[2])
	if err != nil || percent > 100 {
		return "", 0, false
	}
	return strings.TrimSpace(match[1]), float64(percent), true
}

// scanLinesOrReturns splits on '\n' or '\r' so carriage-return redraws
// become separate lines.
func scanLinesOrReturns(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance := i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
