package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilities(t *testing.T) {
	all := AllCapabilities()
	for _, c := range KnownCapabilities {
		assert.True(t, all.Has(c), c)
	}

	web := NewCapabilities(" Web ", "")
	assert.Equal(t, []Capability{CapabilityWeb}, web.List())
	assert.False(t, web.Has(CapabilitySkill))

	var none Capabilities
	assert.False(t, none.Has(CapabilityWeb))
	assert.Empty(t, none.List())

	noSub := all.Without(CapabilitySubagent)
	assert.False(t, noSub.Has(CapabilitySubagent))
	assert.True(t, all.Has(CapabilitySubagent))

	assert.Equal(t, all.List(), ParseCapabilities(nil).List())
	assert.Equal(t, []Capability{CapabilityMemory, CapabilitySkill}, ParseCapabilities([]string{"skill", "memory"}).List())
}
