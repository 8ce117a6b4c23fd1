package cmc

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"strconv"
	"strings"
	"sync"

	"github.com/banshee-data/motrack/internal/fsutil"
)

// FileEstimator replays precomputed transforms, one per Estimate call, in the
// order they appear in the source file. Each line holds
//
//	frame a b tx c d ty
//
// separated by whitespace or commas; blank lines and '#' comments are skipped.
type FileEstimator struct {
	mu         sync.Mutex
	frames     []int
	transforms []Transform
	next       int
}

// LoadFile reads a transform file through fs.
func LoadFile(fs fsutil.FileSystem, path string) (*FileEstimator, error) {
	if path == "" {
		return nil, fmt.Errorf("no transform file given")
	}
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transform file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile parses transform file contents.
func ParseFile(data []byte) (*FileEstimator, error) {
	e := &FileEstimator{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		if len(fields) != 7 {
			return nil, fmt.Errorf("line %d: want 7 fields, got %d", lineNo, len(fields))
		}
		frame, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad frame number: %w", lineNo, err)
		}
		if n := len(e.frames); n > 0 && frame <= e.frames[n-1] {
			return nil, fmt.Errorf("line %d: frame %d not after frame %d", lineNo, frame, e.frames[n-1])
		}
		var t Transform
		for i := 0; i < 6; i++ {
			v, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: field %d: %w", lineNo, i+2, err)
			}
			t[i] = v
		}
		e.frames = append(e.frames, frame)
		e.transforms = append(e.transforms, t)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return e, nil
}

// Len returns the number of transforms loaded.
func (e *FileEstimator) Len() int { return len(e.transforms) }

// Estimate returns the next transform in file order. Images are ignored.
func (e *FileEstimator) Estimate(image.Image, image.Image) (Transform, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.next >= len(e.transforms) {
		return Identity(), fmt.Errorf("%w: file exhausted after %d entries", ErrNoTransform, len(e.transforms))
	}
	t := e.transforms[e.next]
	e.next++
	return t, nil
}
