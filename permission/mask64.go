package permission

import "math/bits"

// Mask64 is a set of permission bits.
type Mask64 uint64

func (m Mask64) Has(bit int) bool {
	return bit >= 0 && bit < 64 && m&(1<<uint(bit)) != 0
}

func (m *Mask64) Set(bit int) {
	if bit >= 0 && bit < 64 {
		*m |= 1 << uint(bit)
	}
}

func (m *Mask64) Clear(bit int) {
	if bit >= 0 && bit < 64 {
		*m &^= 1 << uint(bit)
	}
}

// Len is the number of bits set.
func (m Mask64) Len() int { return bits.OnesCount64(uint64(m)) }
