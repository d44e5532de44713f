package core

import (
	"errors"

	"github.com/SullivanCamp/AggieShell/core/vos"
)

const (
	EnvHome   = "HOME"
	EnvPWD    = "PWD"
	EnvOldPWD = "OLDPWD"
)

// ErrNoPreviousDir is returned by Back before any directory change.
var ErrNoPreviousDir = errors.New("OLDPWD not set")

// DirHistory remembers the directory the session was in before its last
// successful change so "cd -" can return to it.
type DirHistory struct {
	OS vos.OS

	// Previous is the directory before the last change, empty if the
	// session hasn't changed directory yet.
	Previous string

	// RecordFailed makes a failed Change still overwrite Previous with the
	// directory it started from.
	RecordFailed bool
}

// NewDirHistory creates an empty history over os.
func NewDirHistory(os vos.OS) *DirHistory {
	return &DirHistory{OS: os}
}

// Change moves into target, or the home directory if target is empty, and
// returns the new working directory.
func (h *DirHistory) Change(target string) (string, error) {
	if target == "" {
		target = h.home()
	}

	before, wdErr := h.OS.Getwd()
	if err := h.OS.Chdir(target); err != nil {
		if h.RecordFailed && wdErr == nil {
			h.Previous = before
		}
		return "", err
	}
	old := ""
	if wdErr == nil {
		h.Previous = before
		old = before
	}

	return h.moved(old, target), nil
}

// Back swaps the working directory with the previous one and returns the
// directory moved into.
func (h *DirHistory) Back() (string, error) {
	if h.Previous == "" {
		return "", ErrNoPreviousDir
	}

	current, err := h.OS.Getwd()
	if err != nil {
		current = "/"
	}

	dest := h.Previous
	if err := h.OS.Chdir(dest); err != nil {
		return "", err
	}
	h.Previous = current

	h.moved(current, dest)
	return dest, nil
}

// moved exports PWD and OLDPWD after a change and returns the new working
// directory, falling back to target if it can't be read.
func (h *DirHistory) moved(old, target string) string {
	now, err := h.OS.Getwd()
	if err != nil {
		now = target
	}

	if old != "" {
		_ = h.OS.Setenv(EnvOldPWD, old)
	}
	_ = h.OS.Setenv(EnvPWD, now)
	return now
}

func (h *DirHistory) home() string {
	home, err := h.OS.UserHomeDir()
	if err != nil || home == "" {
		return "/"
	}
	return home
}
