package agent

import (
	"slices"
	"sync"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

// skillSet tracks the skills enabled during one turn. use_skill may run
// concurrently with other tools of the same step.
type skillSet struct {
	available []ports.Skill

	mu      sync.Mutex
	enabled []string
}

func newSkillSet(available []ports.Skill) *skillSet {
	return &skillSet{available: available}
}

func (s *skillSet) enable(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.enabled, name) {
		s.enabled = append(s.enabled, name)
	}
}

// names returns the enabled skill names in enabling order.
func (s *skillSet) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.enabled...)
}

func (s *skillSet) enabledSkills() []ports.Skill {
	names := s.names()
	out := make([]ports.Skill, 0, len(names))
	for _, name := range names {
		if i := slices.IndexFunc(s.available, func(sk ports.Skill) bool { return sk.Name == name }); i >= 0 {
			out = append(out, s.available[i])
		}
	}
	return out
}
