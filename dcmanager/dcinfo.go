// Package dcmanager implements §4.5: the primary/auxiliary sender
// lifecycle, the per-DC AuthorizationKey map, and DC migration on
// PHONE_MIGRATE_X/NETWORK_MIGRATE_X/USER_MIGRATE_X/FILE_MIGRATE_X. It is
// grounded directly on the teacher's mtglib/internal/telegram package: the
// Telegram struct's pool-of-addresses-plus-dialer shape (telegram.go),
// generalized from "pick an address to relay through" to "pick an address
// to run the AuthKey exchange and own a Sender against".
package dcmanager

import "math/rand"

// DCInfo is one entry in a DCDirectory: the addresses a DC id resolves to.
type DCInfo struct {
	ID        int
	Addresses []string
}

// DCDirectory resolves a DC id to the addresses a Manager should try, in
// the teacher's addressPool style (mtglib/internal/telegram/address_pool.go):
// isValidDC/getV4 generalized to a pluggable interface so callers can
// supply Telegram's production DC list or a test double.
type DCDirectory interface {
	Addresses(dcID int) []string
	IsKnown(dcID int) bool
	RandomDC() int
	RandomDCExcluding(exclude int) int
}

// MapDCDirectory is the trivial DCDirectory backed by a static map,
// suitable for tests and for callers who hardcode Telegram's published DC
// list.
type MapDCDirectory map[int][]string

// Addresses implements DCDirectory.
func (m MapDCDirectory) Addresses(dcID int) []string {
	addrs := m[dcID]
	if len(addrs) <= 1 {
		return addrs
	}

	out := make([]string, len(addrs))
	copy(out, addrs)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })

	return out
}

// IsKnown implements DCDirectory.
func (m MapDCDirectory) IsKnown(dcID int) bool {
	_, ok := m[dcID]
	return ok
}

// RandomDC implements DCDirectory, returning an arbitrary known DC id.
func (m MapDCDirectory) RandomDC() int {
	ids := m.ids()
	if len(ids) == 0 {
		return 0
	}

	return ids[rand.Intn(len(ids))]
}

// RandomDCExcluding implements DCDirectory.
func (m MapDCDirectory) RandomDCExcluding(exclude int) int {
	ids := m.ids()

	candidates := make([]int, 0, len(ids))

	for _, id := range ids {
		if id != exclude {
			candidates = append(candidates, id)
		}
	}

	if len(candidates) == 0 {
		return m.RandomDC()
	}

	return candidates[rand.Intn(len(candidates))]
}

func (m MapDCDirectory) ids() []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}

	return ids
}
