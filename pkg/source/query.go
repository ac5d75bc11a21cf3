package source

import (
	"bufio"
	"io"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/pkg/errors"
)

// QueryFunc receives the JSONPath matches of a single frame line.
type QueryFunc func(line int, matches []any) error

// Query evaluates a JSONPath expression against every frame of a recording.
// The header line is skipped. Lines without matches are not reported.
func Query(r io.Reader, path string, fn QueryFunc) error {
	expr, err := jp.ParseString(path)
	if err != nil {
		return errors.Wrapf(err, "parse path %q", path)
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if line == 1 {
			continue
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		obj, err := oj.ParseString(text)
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		matches := expr.Get(obj)
		if len(matches) == 0 {
			continue
		}
		if err := fn(line, matches); err != nil {
			return err
		}
	}
	return errors.Wrap(scanner.Err(), "scan recording")
}
