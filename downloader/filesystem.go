package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Reads datasets from the local filesystem. Locations are bare paths
// or file:// URLs; relative paths resolve against Dir.
type Filesystem struct {
	Dir string
}

func NewFilesystem(dir string) *Filesystem {
	return &Filesystem{Dir: dir}
}

// Path resolves location to a filesystem path.
func (f *Filesystem) Path(location string) string {
	path := strings.TrimPrefix(location, "file://")
	if f.Dir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(f.Dir, path)
	}
	return path
}

func (f *Filesystem) Get(
	ctx context.Context,
	location string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := f.Path(location)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	return readLimited(file, options.MaxSize)
}
