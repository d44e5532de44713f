package vostest

import (
	"errors"
	"sort"
	"strings"

	"github.com/SullivanCamp/AggieShell/core/vos"
)

// ErrNoHome is returned by Env.UserHomeDir when HOME is unset or empty.
var ErrNoHome = errors.New("$HOME is not defined")

// Env is an in-memory environment.
type Env struct {
	vars map[string]string
}

var _ vos.VEnv = (*Env)(nil)

// NewEnv creates an environment from "key=value" entries. An entry without
// "=" sets an empty value, and later entries win.
func NewEnv(environ ...string) *Env {
	env := &Env{vars: make(map[string]string, len(environ))}
	for _, kv := range environ {
		key, value, _ := strings.Cut(kv, "=")
		env.vars[key] = value
	}
	return env
}

func (e *Env) UserHomeDir() (string, error) {
	if home := e.vars["HOME"]; home != "" {
		return home, nil
	}
	return "", ErrNoHome
}

func (e *Env) Unsetenv(key string) error {
	delete(e.vars, key)
	return nil
}

func (e *Env) Setenv(key, value string) error {
	e.vars[key] = value
	return nil
}

func (e *Env) LookupEnv(key string) (string, bool) {
	value, ok := e.vars[key]
	return value, ok
}

func (e *Env) Getenv(key string) string {
	return e.vars[key]
}

// Environ returns the entries sorted by key so tests can compare them.
func (e *Env) Environ() []string {
	keys := make([]string, 0, len(e.vars))
	for key := range e.vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = key + "=" + e.vars[key]
	}
	return out
}
