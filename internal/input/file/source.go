package file

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Stdin is the path that selects standard input.
const Stdin = "-"

const maxLineSize = 1024 * 1024

// Source reads log lines from one or more files. Paths ending in .gz or
// .zst are decompressed.
type Source struct {
	paths []string
	stdin io.Reader
}

// New creates a file source. With no paths it reads standard input.
func New(paths ...string) *Source {
	if len(paths) == 0 {
		paths = []string{Stdin}
	}
	return &Source{paths: paths, stdin: os.Stdin}
}

// WithStdin replaces the reader used for "-".
func (s *Source) WithStdin(r io.Reader) *Source {
	s.stdin = r
	return s
}

// Name returns the comma-separated paths.
func (s *Source) Name() string {
	return strings.Join(s.paths, ",")
}

// Lines reads every non-blank line of every path, in order. A path that
// cannot be read is reported in the returned error while the remaining
// paths are still read.
func (s *Source) Lines(ctx context.Context) ([]string, error) {
	var lines []string
	var errs []error
	for _, path := range s.paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		var err error
		lines, err = s.readPath(ctx, path, lines)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return lines, errors.Join(errs...)
}

func (s *Source) readPath(ctx context.Context, path string, lines []string) ([]string, error) {
	if path == Stdin {
		return scan(ctx, s.stdin, lines)
	}

	f, err := os.Open(path)
	if err != nil {
		return lines, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r, closeFn, err := decompress(path, f)
	if err != nil {
		return lines, fmt.Errorf("open %s: %w", path, err)
	}
	defer closeFn()

	lines, err = scan(ctx, r, lines)
	if err != nil {
		return lines, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}

func decompress(path string, r io.Reader) (io.Reader, func(), error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { zr.Close() }, nil
	case strings.HasSuffix(lower, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	default:
		return r, func() {}, nil
	}
}

func scan(ctx context.Context, r io.Reader, lines []string) ([]string, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	n := 0
	for scanner.Scan() {
		n++
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return lines, err
			}
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return lines, err
	}
	return lines, nil
}
