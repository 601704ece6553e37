package buffer

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Reference is an LRU cache over block addresses backed by the akita cache
// directory. It is used as an independent oracle for Cache with the LRU
// policy.
type Reference struct {
	directory *akitacache.DirectoryImpl
	blockSize uint64
	data      map[uint64]uint64
}

// NewReference creates a reference with numSets sets of ways lines.
func NewReference(numSets, ways, blockSize int) *Reference {
	return &Reference{
		directory: akitacache.NewDirectory(numSets, ways, blockSize, akitacache.NewLRUVictimFinder()),
		blockSize: uint64(blockSize),
		data:      make(map[uint64]uint64),
	}
}

func (r *Reference) block(addr uint64) uint64 {
	return addr / r.blockSize * r.blockSize
}

func (r *Reference) IsHit(addr uint64) (bool, error) {
	block := r.directory.Lookup(0, r.block(addr))
	return block != nil && block.IsValid, nil
}

func (r *Reference) Data(addr uint64) (uint64, bool, error) {
	block := r.directory.Lookup(0, r.block(addr))
	if block == nil || !block.IsValid {
		return 0, false, nil
	}
	r.directory.Visit(block)
	return r.data[block.Tag], true, nil
}

func (r *Reference) SetData(addr, data uint64) (uint64, bool, error) {
	blockAddr := r.block(addr)
	if block := r.directory.Lookup(0, blockAddr); block != nil && block.IsValid {
		r.data[blockAddr] = data
		r.directory.Visit(block)
		return 0, false, nil
	}

	victim := r.directory.FindVictim(blockAddr)
	var evicted uint64
	hadVictim := victim.IsValid
	if hadVictim {
		evicted = r.data[victim.Tag]
		delete(r.data, victim.Tag)
	}
	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false
	r.data[blockAddr] = data
	r.directory.Visit(victim)
	return evicted, hadVictim, nil
}

// Reset invalidates every block.
func (r *Reference) Reset() {
	r.directory.Reset()
	r.data = make(map[uint64]uint64)
}
