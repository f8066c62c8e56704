// Package health holds the process-wide readiness flag. The flag has a
// single writer (the notification client connect path) and any number of
// readers (the probe handlers).
package health

import "sync/atomic"

type State struct {
	ready atomic.Bool
}

func NewState() *State {
	return &State{}
}

func (s *State) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *State) IsReady() bool {
	return s.ready.Load()
}
