// Package vos is the seam between the shell and the operating system it
// runs on: working directory, environment and identity.
package vos

// VDir tracks the working directory.
type VDir interface {
	// Getwd returns a rooted path name corresponding to the current
	// directory.
	Getwd() (string, error)

	// Chdir changes the current working directory to the named directory.
	// If there is an error, it will be of type *fs.PathError.
	Chdir(dir string) error
}

// VIdentity describes who and where the shell is running.
type VIdentity interface {
	Hostname() (string, error)
	Username() (string, error)
	Getuid() int
}

// OS provides the operating system view the shell session works against.
type OS interface {
	VEnv
	VDir
	VIdentity
}
