package proc

import (
	"os"
	"path/filepath"
)

// OpenInput opens the file named by a < redirection. Relative names are
// resolved against dir.
func OpenInput(dir, name string) (*os.File, error) {
	return os.Open(resolve(dir, name))
}

// OpenOutput creates or truncates the file named by a > redirection.
// Relative names are resolved against dir.
func OpenOutput(dir, name string) (*os.File, error) {
	return os.OpenFile(resolve(dir, name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
}

func resolve(dir, name string) string {
	if dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}
