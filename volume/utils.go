package volume

import (
	"path/filepath"
	"strconv"
	"strings"
)

// StorageRef identifies a dataset location such as a segmentation volume or a
// pipeline metadata store, e.g., "gs://bucket/dataset/seg".  Task generation
// passes it through to commands without interpreting it.
type StorageRef string

func (ref StorageRef) String() string {
	return string(ref)
}

// ConvertToAbsolute returns the absolute form of path, treating relative paths
// as relative to dir.
func ConvertToAbsolute(path, dir string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Abs(filepath.Join(dir, path))
}

// FormatFloat prints a float the way the pipeline's worker scripts print
// numbers: integral values keep a trailing ".0" and very small or large
// magnitudes switch to exponent form, e.g., 0.5, 100.0, 1e-05.
func FormatFloat(f float64) string {
	abs := f
	if abs < 0 {
		abs = -abs
	}
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}
