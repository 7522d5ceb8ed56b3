package annotator

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
)

// Frame is one unit of input: a uniquely identified decoded image.
type Frame struct {
	ID    string
	Image *cimg.Image
}

// Source produces the frames of a run. Implementations send decoded frames
// into the channel and return when the input is exhausted or ctx is done.
// The caller owns closing the channel.
type Source interface {
	Frames(ctx context.Context, out chan<- Frame) error
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// DirectorySource walks a directory of still images in sorted filename
// order, one frame per file. Frame IDs are the paths relative to the root.
type DirectorySource struct {
	Root      string
	Recursive bool
	Log       logs.Log
}

// ListImages returns the image files under the root in sorted order.
func (s *DirectorySource) ListImages() ([]string, error) {
	paths := []string{}
	if s.Recursive {
		err := filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && imageExtensions[strings.ToLower(filepath.Ext(path))] {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("Failed to scan image directory '%v': %w", s.Root, err)
		}
	} else {
		entries, err := os.ReadDir(s.Root)
		if err != nil {
			return nil, fmt.Errorf("Failed to scan image directory '%v': %w", s.Root, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
				paths = append(paths, filepath.Join(s.Root, entry.Name()))
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *DirectorySource) Frames(ctx context.Context, out chan<- Frame) error {
	paths, err := s.ListImages()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("No images found in '%v'", s.Root)
	}
	for _, path := range paths {
		img, err := cimg.ReadFile(path)
		if err != nil {
			// A single undecodable file must not kill the run
			if s.Log != nil {
				s.Log.Warnf("Skipping undecodable image '%v': %v", path, err)
			}
			continue
		}
		id, relErr := filepath.Rel(s.Root, path)
		if relErr != nil {
			id = path
		}
		select {
		case out <- Frame{ID: id, Image: img}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
