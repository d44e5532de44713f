package vos

import (
	"os"
	"os/user"
)

// HostOS is the OS of the process the shell runs in.
type HostOS struct{}

var _ OS = (*HostOS)(nil)

// NewHostOS returns the real operating system.
func NewHostOS() *HostOS {
	return &HostOS{}
}

func (*HostOS) Getwd() (string, error)              { return os.Getwd() }
func (*HostOS) Chdir(dir string) error              { return os.Chdir(dir) }
func (*HostOS) UserHomeDir() (string, error)        { return os.UserHomeDir() }
func (*HostOS) Unsetenv(key string) error           { return os.Unsetenv(key) }
func (*HostOS) Setenv(key, value string) error      { return os.Setenv(key, value) }
func (*HostOS) LookupEnv(key string) (string, bool) { return os.LookupEnv(key) }
func (*HostOS) Getenv(key string) string            { return os.Getenv(key) }
func (*HostOS) Environ() []string                   { return os.Environ() }
func (*HostOS) Hostname() (string, error)           { return os.Hostname() }
func (*HostOS) Getuid() int                         { return os.Getuid() }

// Username returns the login name of the current user, falling back to
// $USER when the user database can't be read.
func (h *HostOS) Username() (string, error) {
	u, err := user.Current()
	if err == nil {
		return u.Username, nil
	}
	if name := h.Getenv("USER"); name != "" {
		return name, nil
	}
	return "", err
}
