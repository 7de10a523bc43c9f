package system

import (
	"sort"

	"github.com/aegix-network/aegix/internal/core/descriptor"
)

// CollectDescriptors extracts descriptors from providers, skipping entries
// that don't implement DescriptorProvider or are nil, and sorts the result
// by layer then name for deterministic presentation.
func CollectDescriptors(providers []DescriptorProvider) []descriptor.Descriptor {
	var out []descriptor.Descriptor
	for _, p := range providers {
		if p == nil {
			continue
		}
		out = append(out, p.Descriptor())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Layer == out[j].Layer {
			return out[i].Name < out[j].Name
		}
		return out[i].Layer < out[j].Layer
	})
	return out
}
