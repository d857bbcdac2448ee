package market

import "sort"

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Hash2 and Hash3 derive the per-tick randomness stream. Everything the
// simulation rolls comes from (seed, month, salt) so runs replay exactly.
func Hash2(seed int64, a, b int) uint64 {
	ua := uint64(uint32(int32(a)))
	ub := uint64(uint32(int32(b)))
	v := uint64(seed) ^ (ua * 0x9e3779b97f4a7c15) ^ (ub * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func Hash3(seed int64, a, b, c int) uint64 {
	ua := uint64(uint32(int32(a)))
	ub := uint64(uint32(int32(b)))
	uc := uint64(uint32(int32(c)))
	v := uint64(seed) ^ (ua * 0x9e3779b97f4a7c15) ^ (ub * 0xc2b2ae3d27d4eb4f) ^ (uc * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// HashID folds a string id to an int salt.
func HashID(id string) int {
	// FNV-1a 64-bit, folded to int.
	var h uint64 = 1469598103934665603
	for i := 0; i < len(id); i++ {
		h ^= uint64(id[i])
		h *= 1099511628211
	}
	return int(uint32(h))
}

// SampleWeighted picks a key deterministically from positive weights using
// roll as the randomness source. Keys are visited in sorted order so the
// pick is stable across map iteration order.
func SampleWeighted(weights map[string]float64, roll uint64) string {
	if len(weights) == 0 {
		return ""
	}
	ids := make([]string, 0, len(weights))
	var total float64
	for id, w := range weights {
		if w > 0 {
			ids = append(ids, id)
			total += w
		}
	}
	if total <= 0 || len(ids) == 0 {
		return ""
	}
	sort.Strings(ids)

	// Deterministic pick in [0,total).
	r := float64(roll%1_000_000_000) / 1_000_000_000.0
	target := r * total

	var acc float64
	for _, id := range ids {
		acc += weights[id]
		if target <= acc {
			return id
		}
	}
	return ids[len(ids)-1]
}
