package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const maxLineBytes = 1024 * 1024

// Options controls Stream.
type Options struct {
	// Lines is how many trailing lines to print first; 0 prints the whole file.
	Lines  int
	Follow bool
	// Poll is the follow interval; 0 uses 250ms.
	Poll  time.Duration
	Match Matcher
}

// Matcher selects lines to print. A nil Matcher accepts everything.
type Matcher func(line string) bool

// FieldMatcher accepts JSON log lines whose top-level field key equals value.
// Lines that are not JSON objects are rejected.
func FieldMatcher(key, value string) Matcher {
	return func(line string) bool {
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return false
		}
		got, ok := record[key]
		if !ok {
			return false
		}
		return fmt.Sprint(got) == value
	}
}

// All combines matchers; every one must accept the line.
func All(matchers ...Matcher) Matcher {
	return func(line string) bool {
		for _, m := range matchers {
			if m != nil && !m(line) {
				return false
			}
		}
		return true
	}
}

// Stream writes the matching tail of path to w and, with Follow, keeps
// writing matching appended lines until ctx is done. A missing file is
// treated as empty.
func Stream(ctx context.Context, path string, w io.Writer, opts Options) error {
	match := opts.Match
	if match == nil {
		match = func(string) bool { return true }
	}
	emit := func(line string) error {
		if !match(line) {
			return nil
		}
		_, err := fmt.Fprintln(w, line)
		return err
	}

	var (
		lines  []string
		offset int64
		err    error
	)
	if opts.Match != nil && opts.Lines > 0 {
		lines, offset, err = lastMatching(path, opts.Lines, match)
	} else {
		lines, offset, err = Last(path, opts.Lines)
	}
	if err != nil {
		return err
	}
	for _, line := range lines {
		if err := emit(line); err != nil {
			return err
		}
	}
	if !opts.Follow {
		return nil
	}
	err = Follow(ctx, path, offset, opts.Poll, emit)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Last returns the final n lines of path (all lines when n <= 0) and the
// byte offset just past them.
func Last(path string, n int) ([]string, int64, error) {
	return lastMatching(path, n, nil)
}

func lastMatching(path string, n int, match Matcher) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var (
		ring  []string
		count int
		next  int
		all   []string
	)
	if n > 0 {
		ring = make([]string, n)
	}
	offset, err := scanLines(file, func(line string) {
		if match != nil && !match(line) {
			return
		}
		if n <= 0 {
			all = append(all, line)
			return
		}
		ring[next] = line
		next = (next + 1) % n
		count = min(count+1, n)
	})
	if err != nil {
		return nil, 0, err
	}
	if n <= 0 {
		return all, offset, nil
	}

	lines := make([]string, count)
	start := 0
	if count == n {
		start = next
	}
	for i := range count {
		lines[i] = ring[(start+i)%n]
	}
	return lines, offset, nil
}

// scanLines feeds each complete line of r to fn and returns the offset after
// the last complete line. A trailing partial line is left for a later read.
func scanLines(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return consumed, nil
			}
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		text := line[:len(line)-1]
		if len(text) > 0 && text[len(text)-1] == '\r' {
			text = text[:len(text)-1]
		}
		if len(text) > maxLineBytes {
			text = text[:maxLineBytes]
		}
		fn(text)
	}
}

// Follow polls path and passes each line appended after offset to fn until
// ctx is done or fn fails.
func Follow(ctx context.Context, path string, offset int64, poll time.Duration, fn func(string) error) error {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, fn)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, fn func(string) error) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return offset, nil
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	var fnErr error
	consumed, err := scanLines(file, func(line string) {
		if fnErr == nil {
			fnErr = fn(line)
		}
	})
	if err != nil {
		return offset, err
	}
	if fnErr != nil {
		return offset + consumed, fnErr
	}
	return offset + consumed, nil
}
