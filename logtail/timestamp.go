package logtail

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"
)

// LineTimestampLayout is the timestamp that starts every logcat line in
// threadtime format, e.g. "06-21 17:44:42.336"
const LineTimestampLayout = "01-02 15:04:05.000"

// FormatLineTimestamp renders t the way log lines are stamped
func FormatLineTimestamp(t time.Time) string {
	return t.Format(LineTimestampLayout)
}

// EpochToLineTimestamp renders milliseconds since the Unix epoch as a line
// timestamp in loc
func EpochToLineTimestamp(ms int64, loc *time.Location) string {
	return FormatLineTimestamp(time.UnixMilli(ms).In(loc))
}

// IsValidLineTimestamp reports whether s is exactly one line timestamp
func IsValidLineTimestamp(s string) bool {
	if len(s) != len(LineTimestampLayout) {
		return false
	}
	_, err := time.Parse(LineTimestampLayout, s)
	return err == nil
}

// Excerpt writes the lines of the destination file stamped at or after
// since to w. Lines without a timestamp belong to the line before them.
// Timestamps carry no year, so an excerpt must not span a new year.
func (t *Tailer) Excerpt(w io.Writer, since time.Time) (int64, error) {
	dest := t.Dest()
	if dest == "" {
		return 0, ErrNoDest
	}
	f, err := os.Open(dest)
	if err != nil {
		return 0, fmt.Errorf("logtail: opening dest: %w", err)
	}
	defer f.Close()

	from := FormatLineTimestamp(since.In(time.Local))
	var (
		written   int64
		including bool
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) >= len(LineTimestampLayout) {
			if stamp := line[:len(LineTimestampLayout)]; IsValidLineTimestamp(stamp) {
				including = stamp >= from
			}
		}
		if !including {
			continue
		}
		n, err := io.WriteString(w, line+"\n")
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	if err := scanner.Err(); err != nil {
		return written, fmt.Errorf("logtail: reading dest: %w", err)
	}
	return written, nil
}
