package filter

// bitmap is a growable set of access indices.
type bitmap struct {
	words []uint64
}

func (b *bitmap) ensure(word int) {
	if word < len(b.words) {
		return
	}
	b.words = append(b.words, make([]uint64, word+1-len(b.words))...)
}

func (b *bitmap) set(index int) bool {
	word, bit := index/64, uint(index)%64
	b.ensure(word)
	old := b.words[word]
	mask := uint64(1) << bit
	b.words[word] |= mask
	return old&mask == 0
}

func (b *bitmap) has(index int) bool {
	word, bit := index/64, uint(index)%64
	if word >= len(b.words) {
		return false
	}
	return b.words[word]&(uint64(1)<<bit) != 0
}

// indices returns the members in ascending order.
func (b *bitmap) indices() []int {
	var out []int
	for word, w := range b.words {
		for bit := 0; w != 0; bit++ {
			if w&1 != 0 {
				out = append(out, word*64+bit)
			}
			w >>= 1
		}
	}
	return out
}
