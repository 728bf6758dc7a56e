package ports

import (
	"slices"
	"strings"
)

// Capability names a family of tools the agent may use.
type Capability string

const (
	CapabilityWeb      Capability = "web"
	CapabilitySchedule Capability = "schedule"
	CapabilityMemory   Capability = "memory"
	CapabilitySubagent Capability = "subagent"
	CapabilityContact  Capability = "contact"
	CapabilityMessage  Capability = "message"
	CapabilitySkill    Capability = "skill"
)

// KnownCapabilities lists every capability in presentation order.
var KnownCapabilities = []Capability{
	CapabilityWeb,
	CapabilitySchedule,
	CapabilityMemory,
	CapabilitySubagent,
	CapabilityContact,
	CapabilityMessage,
	CapabilitySkill,
}

// Capabilities is an immutable set of allowed capabilities. The zero value
// allows nothing.
type Capabilities struct {
	set map[Capability]struct{}
}

// NewCapabilities builds a set from caps. Unknown names are kept so that
// externally registered tool families can be gated too.
func NewCapabilities(caps ...Capability) Capabilities {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		c = Capability(strings.ToLower(strings.TrimSpace(string(c))))
		if c != "" {
			set[c] = struct{}{}
		}
	}
	return Capabilities{set: set}
}

// AllCapabilities allows every known capability.
func AllCapabilities() Capabilities {
	return NewCapabilities(KnownCapabilities...)
}

// ParseCapabilities builds a set from names; empty input means all.
func ParseCapabilities(names []string) Capabilities {
	if len(names) == 0 {
		return AllCapabilities()
	}
	caps := make([]Capability, 0, len(names))
	for _, n := range names {
		caps = append(caps, Capability(n))
	}
	return NewCapabilities(caps...)
}

// Has reports whether c is allowed.
func (c Capabilities) Has(capability Capability) bool {
	_, ok := c.set[capability]
	return ok
}

// List returns the allowed capabilities, sorted.
func (c Capabilities) List() []Capability {
	out := make([]Capability, 0, len(c.set))
	for k := range c.set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Without returns a copy of the set lacking the given capabilities.
func (c Capabilities) Without(caps ...Capability) Capabilities {
	keep := make([]Capability, 0, len(c.set))
	for k := range c.set {
		if !slices.Contains(caps, k) {
			keep = append(keep, k)
		}
	}
	return NewCapabilities(keep...)
}
