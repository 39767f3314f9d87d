// Package addresses implements the address-similarity merge used when
// collapsing a duplicate group: near-duplicate addresses (matching normalized
// street, city and postal code) collapse to one entry.
package addresses

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// similarityKey collapses an address to its comparable form. Street2 is
// ignored: unit and suite variations of the same street address are treated
// as the same location.
func similarityKey(street, city, postalCode string) string {
	return strings.Join([]string{
		normalizers.NormalizeAddress(street),
		normalizers.ApplyChain(city, "lowercase", "trim"),
		normalizers.DigitsOnly(postalCode),
	}, "|")
}

// MergeSimilar deduplicates the kept entity's addresses against the removed
// entities' addresses. Kept addresses are walked first so a collision
// preserves the kept record's id and primary flag; removed-entity addresses
// that survive lose their id and are created new under the kept entity.
func MergeSimilar(kept []models.Address, removed []models.Address) []models.AddressPayload {
	seen := make(map[string]int)
	merged := make([]models.AddressPayload, 0, len(kept)+len(removed))

	for _, addr := range kept {
		key := similarityKey(addr.Street, addr.City, addr.PostalCode)
		if idx, ok := seen[key]; ok {
			merged[idx].IsPrimary = merged[idx].IsPrimary || addr.IsPrimary
			continue
		}
		seen[key] = len(merged)
		merged = append(merged, toPayload(addr, true))
	}

	for _, addr := range removed {
		key := similarityKey(addr.Street, addr.City, addr.PostalCode)
		if idx, ok := seen[key]; ok {
			// The kept record wins; only absorb primacy when the kept
			// entity has no primary address at all.
			if !hasPrimary(merged) {
				merged[idx].IsPrimary = merged[idx].IsPrimary || addr.IsPrimary
			}
			continue
		}
		seen[key] = len(merged)
		merged = append(merged, toPayload(addr, false))
	}

	return merged
}

func hasPrimary(payloads []models.AddressPayload) bool {
	for _, p := range payloads {
		if p.IsPrimary {
			return true
		}
	}
	return false
}

func toPayload(addr models.Address, keepID bool) models.AddressPayload {
	p := models.AddressPayload{
		Street:     addr.Street,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		IsPrimary:  addr.IsPrimary,
	}
	if addr.Street2 != nil {
		p.Street2 = *addr.Street2
	}
	if keepID {
		p.AddressID = addr.ID
	}
	return p
}
