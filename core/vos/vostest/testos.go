// Package vostest provides a deterministic vos.OS for tests.
package vostest

import (
	"errors"
	"io/fs"
	"path/filepath"
	"syscall"

	"github.com/SullivanCamp/AggieShell/core/vos"
	"github.com/spf13/afero"
)

// Defaults used by NewTestOS.
const (
	DefaultHome     = "/home/aggie"
	DefaultUser     = "aggie"
	DefaultHostname = "reveille"
)

// TestOS is a vos.OS whose directory tree lives in an afero filesystem and
// whose environment lives in memory.
type TestOS struct {
	*Env

	Fs  afero.Fs
	Cwd string

	Host string
	User string
	UID  int

	// GetwdErr, when set, is returned by Getwd.
	GetwdErr error
}

var _ vos.OS = (*TestOS)(nil)

// NewTestOS creates an OS backed by an in-memory filesystem containing /,
// /tmp and the home directory, with the working directory set to home.
func NewTestOS() *TestOS {
	memFs := afero.NewMemMapFs()
	for _, dir := range []string{"/tmp", DefaultHome} {
		// MemMapFs.MkdirAll never fails.
		_ = memFs.MkdirAll(dir, 0755)
	}

	return NewTestOSWithFs(memFs, DefaultHome)
}

// NewTestOSWithFs creates an OS over an existing filesystem. Passing
// afero.NewOsFs() with a real directory lets tests run processes in cwd.
func NewTestOSWithFs(base afero.Fs, cwd string) *TestOS {
	return &TestOS{
		Env: NewEnv(
			"HOME="+DefaultHome,
			"USER="+DefaultUser,
			"PATH=/usr/local/bin:/usr/bin:/bin",
		),
		Fs:   base,
		Cwd:  cwd,
		Host: DefaultHostname,
		User: DefaultUser,
		UID:  1000,
	}
}

// Getwd implements vos.VDir.Getwd.
func (t *TestOS) Getwd() (string, error) {
	if t.GetwdErr != nil {
		return "", t.GetwdErr
	}
	return t.Cwd, nil
}

// Chdir implements vos.VDir.Chdir.
func (t *TestOS) Chdir(dir string) error {
	target := dir
	if !filepath.IsAbs(target) {
		target = filepath.Join(t.Cwd, target)
	}
	target = filepath.Clean(target)

	fi, err := t.Fs.Stat(target)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			err = pathErr.Err
		}
		return &fs.PathError{Op: "chdir", Path: dir, Err: err}
	}
	if !fi.IsDir() {
		return &fs.PathError{Op: "chdir", Path: dir, Err: syscall.ENOTDIR}
	}

	t.Cwd = target
	return nil
}

// Hostname implements vos.VIdentity.Hostname.
func (t *TestOS) Hostname() (string, error) {
	return t.Host, nil
}

// Username implements vos.VIdentity.Username.
func (t *TestOS) Username() (string, error) {
	return t.User, nil
}

// Getuid implements vos.VIdentity.Getuid.
func (t *TestOS) Getuid() int {
	return t.UID
}
