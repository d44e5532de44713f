package proc

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0111 != 0 {
		return nil
	}
	return fs.ErrPermission
}

// lookPath resolves the program a stage runs. A name containing a slash is
// tried directly, relative to dir. Otherwise the directories named by PATH
// in env are searched in order; relative entries, including the empty entry
// meaning ".", are also taken relative to dir. A nil env searches the PATH of
// the current process.
//
// Errors are *exec.Error values wrapping exec.ErrNotFound or the reason the
// named file can't be run.
func lookPath(env []string, dir, file string) (string, error) {
	if strings.Contains(file, "/") {
		path := resolve(dir, file)
		if err := findExecutable(path); err != nil {
			return "", &exec.Error{Name: file, Err: unwrapPathError(err)}
		}
		return path, nil
	}

	for _, elem := range filepath.SplitList(envPath(env)) {
		if elem == "" {
			// Unix shell semantics: path element "" means "."
			elem = "."
		}
		path := resolve(dir, filepath.Join(elem, file))
		if err := findExecutable(path); err == nil {
			return path, nil
		}
	}
	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}

// envPath returns the last PATH entry in env, like the environment lookup of
// a C program.
func envPath(env []string) string {
	if env == nil {
		return os.Getenv("PATH")
	}

	path := ""
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			path = kv[len("PATH="):]
		}
	}
	return path
}

func unwrapPathError(err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err
	}
	return err
}
