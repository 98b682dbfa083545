package payment

import "sync"

type syncMap struct {
	mu sync.Mutex
	m  map[string]Outcome
}

func (s *syncMap) load(key string) (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *syncMap) store(key string, v Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[string]Outcome)
	}
	s.m[key] = v
}
