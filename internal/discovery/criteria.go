package discovery

import "github.com/srgg/blecentral/internal/gatt"

// DiscoveryCriteria is an ordered list of aspects; it matches an
// advertisement iff every aspect matches.
type DiscoveryCriteria struct {
	Aspects []DescriptorAspect
}

func NewDiscoveryCriteria(aspects ...DescriptorAspect) DiscoveryCriteria {
	return DiscoveryCriteria{Aspects: aspects}
}

// Matches is the conjunction of every aspect's Matches.
func (c DiscoveryCriteria) Matches(peripheralGAPName *string, adv AdvertisementData) bool {
	for _, a := range c.Aspects {
		if !a.Matches(peripheralGAPName, adv) {
			return false
		}
	}
	return true
}

// DiscoveryIDs is the set of service UUIDs appearing in `service`
// aspects, in first-seen order, used to constrain scan filters.
func (c DiscoveryCriteria) DiscoveryIDs() []gatt.UUID {
	seen := make(map[gatt.UUID]bool)
	var ids []gatt.UUID
	for _, a := range c.Aspects {
		if a.Kind != AspectService {
			continue
		}
		if seen[a.ServiceUUID] {
			continue
		}
		seen[a.ServiceUUID] = true
		ids = append(ids, a.ServiceUUID)
	}
	return ids
}
