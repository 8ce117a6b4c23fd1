package pipeline

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/banshee-data/motrack/internal/fsutil"
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".webp": true,
}

// ImageDirSource reads frames from the images in a directory, in lexical file
// order. MOTChallenge sequences ship as img1/000001.jpg, 000002.jpg, ...
type ImageDirSource struct {
	fs    fsutil.FileSystem
	dir   string
	files []string
	next  int
}

// NewImageDirSource lists dir. Files with unknown extensions are skipped.
func NewImageDirSource(fs fsutil.FileSystem, dir string) (*ImageDirSource, error) {
	names, err := fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list image directory: %w", err)
	}
	var files []string
	for _, n := range names {
		if imageExts[strings.ToLower(filepath.Ext(n))] {
			files = append(files, n)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	return &ImageDirSource{fs: fs, dir: dir, files: files}, nil
}

// Len returns the number of frames.
func (s *ImageDirSource) Len() int { return len(s.files) }

// Next implements FrameSource.
func (s *ImageDirSource) Next(ctx context.Context) (int, image.Image, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if s.next >= len(s.files) {
		return 0, nil, io.EOF
	}
	name := s.files[s.next]
	s.next++

	f, err := s.fs.Open(filepath.Join(s.dir, name))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to open frame %s: %w", name, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to decode frame %s: %w", name, err)
	}
	return s.next, img, nil
}

// BlankSource yields n frames without pixels, for detection-only runs.
type BlankSource struct {
	n    int
	next int
}

// NewBlankSource returns a source of n image-less frames.
func NewBlankSource(n int) *BlankSource {
	return &BlankSource{n: n}
}

// Next implements FrameSource.
func (s *BlankSource) Next(ctx context.Context) (int, image.Image, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if s.next >= s.n {
		return 0, nil, io.EOF
	}
	s.next++
	return s.next, nil, nil
}
