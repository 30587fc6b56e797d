package rpc

import "sync/atomic"

// stickyError holds the first error stored in it and never clears.
type stickyError struct {
	err atomic.Pointer[error]
}

func (s *stickyError) Load() error {
	if p := s.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Store records err if the cell is still empty and reports whether it did.
func (s *stickyError) Store(err error) bool {
	return s.err.CompareAndSwap(nil, &err)
}
