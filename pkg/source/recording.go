package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/mod/semver"

	"github.com/rehud/rehud-delta/pkg/model"
)

const (
	// RecordingVersion is written to new recordings.
	RecordingVersion = "v1.0.0"
	maxLineSize      = 4 * 1024 * 1024
)

var ErrUnsupportedVersion = errors.New("unsupported recording version")

// RecordingHeader is the first line of a recording.
type RecordingHeader struct {
	Version     string    `json:"version"`
	RecordingID string    `json:"recordingId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CheckVersion reports whether a recording with version can be read.
// The major version has to match RecordingVersion.
func CheckVersion(version string) bool {
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !semver.IsValid(version) {
		return false
	}
	return semver.Major(version) == semver.Major(RecordingVersion)
}

// RecordingWriter writes frames as JSON lines after a header line.
type RecordingWriter struct {
	w      *bufio.Writer
	enc    *json.Encoder
	header RecordingHeader
}

func NewRecordingWriter(w io.Writer) (*RecordingWriter, error) {
	bw := bufio.NewWriter(w)
	ret := &RecordingWriter{
		w:   bw,
		enc: json.NewEncoder(bw),
		header: RecordingHeader{
			Version:     RecordingVersion,
			RecordingID: uuid.NewString(),
			CreatedAt:   time.Now().UTC(),
		},
	}
	if err := ret.enc.Encode(ret.header); err != nil {
		return nil, errors.Wrap(err, "write header")
	}
	return ret, nil
}

func (w *RecordingWriter) Header() RecordingHeader {
	return w.header
}

func (w *RecordingWriter) Write(frame *model.Frame) error {
	return errors.Wrap(w.enc.Encode(frame), "write frame")
}

func (w *RecordingWriter) Flush() error {
	return w.w.Flush()
}

// RecordingReader reads frames from a recording.
type RecordingReader struct {
	scanner *bufio.Scanner
	header  RecordingHeader
	line    int
}

var _ FrameSource = (*RecordingReader)(nil)

// NewRecordingReader reads and checks the header of the recording.
func NewRecordingReader(r io.Reader) (*RecordingReader, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	ret := &RecordingReader{scanner: scanner}
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrap(err, "read header")
		}
		return nil, errors.New("empty recording")
	}
	ret.line = 1
	if err := json.Unmarshal(scanner.Bytes(), &ret.header); err != nil {
		return nil, errors.Wrap(err, "parse header")
	}
	if !CheckVersion(ret.header.Version) {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %q", ret.header.Version)
	}
	return ret, nil
}

func (r *RecordingReader) Header() RecordingHeader {
	return r.header
}

// Next returns the next frame. Empty lines are skipped.
func (r *RecordingReader) Next(ctx context.Context) (*model.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return nil, errors.Wrapf(err, "line %d", r.line+1)
			}
			return nil, io.EOF
		}
		r.line++
		data := r.scanner.Bytes()
		if len(strings.TrimSpace(string(data))) == 0 {
			continue
		}
		var frame model.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, errors.Wrapf(err, "line %d", r.line)
		}
		return &frame, nil
	}
}

// Line returns the number of the last line read.
func (r *RecordingReader) Line() int {
	return r.line
}

func (h RecordingHeader) String() string {
	return fmt.Sprintf("%s (%s, %s)", h.RecordingID, h.Version,
		h.CreatedAt.Format(time.RFC3339))
}
