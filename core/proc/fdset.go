package proc

import "os"

// fdSet owns a group of open files and closes each one exactly once, no
// matter how many times release or Close is called.
type fdSet struct {
	files  []*os.File
	closed map[*os.File]bool
}

func (s *fdSet) add(files ...*os.File) {
	s.files = append(s.files, files...)
}

// release closes f now if the set owns it and it is still open.
func (s *fdSet) release(f *os.File) error {
	if f == nil || s.closed[f] {
		return nil
	}
	if s.closed == nil {
		s.closed = make(map[*os.File]bool)
	}
	s.closed[f] = true
	return f.Close()
}

// Close closes every file still open and returns the last error seen.
func (s *fdSet) Close() error {
	var lastErr error
	for _, f := range s.files {
		if err := s.release(f); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// open reports how many files are still open.
func (s *fdSet) open() int {
	n := 0
	for _, f := range s.files {
		if !s.closed[f] {
			n++
		}
	}
	return n
}
