package arena

// Source is the part of the engine the provider reads pointers from.
type Source interface {
	// Extent returns the offset and allocated element count of an array.
	// ok is false when the engine has not allocated it.
	Extent(kind Kind) (offset uint32, count int, ok bool)
	// Memory returns the arena as it is right now.
	Memory() []byte
	// Generation changes whenever the slice Memory returns is replaced,
	// including growth the engine does on its own.
	Generation() uint64
}

// Pointer is a region of the arena. It is not itself a view and must not be
// cached across arena mutations.
type Pointer struct {
	Kind   Kind
	Offset uint32
	Stride int
	Count  int
}

// Empty reports whether the pointer names no elements.
func (p Pointer) Empty() bool { return p.Count == 0 }

// Size is the region length in bytes.
func (p Pointer) Size() int { return p.Count * p.Stride }

// Provider hands out views stamped with the current epoch.
type Provider struct {
	src   Source
	epoch *Epoch
}

// NewProvider returns a provider reading from src. The caller owns epoch and
// must advance it on every arena-affecting call.
func NewProvider(src Source, epoch *Epoch) *Provider {
	if epoch == nil {
		epoch = &Epoch{}
	}
	return &Provider{src: src, epoch: epoch}
}

// Epoch returns the epoch views are validated against.
func (p *Provider) Epoch() *Epoch { return p.epoch }

// Resolve maps count elements of kind to a view without copying. An array
// the engine has not allocated yields an empty view and a nil error. A count
// beyond the allocated extent is a BoundsError.
func (p *Provider) Resolve(kind Kind, count int) (Pointer, *View, error) {
	ptr := Pointer{Kind: kind, Stride: kind.Stride()}

	off, allocated, ok := p.src.Extent(kind)
	if !ok || count <= 0 {
		return ptr, p.empty(ptr), nil
	}
	ptr.Offset = off
	ptr.Count = count

	mem := p.src.Memory()
	if count > allocated {
		return ptr, nil, &BoundsError{Kind: kind, Offset: off, Size: ptr.Size(), Arena: len(mem), Count: count, Allocated: allocated}
	}
	end := int(off) + ptr.Size()
	if end > len(mem) {
		return ptr, nil, &BoundsError{Kind: kind, Offset: off, Size: ptr.Size(), Arena: len(mem)}
	}

	return ptr, &View{
		ptr:   ptr,
		data:  mem[off:end:end],
		stamp: p.epoch.Current(),
		epoch: p.epoch,
		src:   p.src,
		gen:   p.src.Generation(),
	}, nil
}

// ResolveAll resolves the whole allocated array.
func (p *Provider) ResolveAll(kind Kind) (Pointer, *View, error) {
	_, count, ok := p.src.Extent(kind)
	if !ok {
		count = 0
	}
	return p.Resolve(kind, count)
}

func (p *Provider) empty(ptr Pointer) *View {
	return &View{ptr: ptr, stamp: p.epoch.Current(), epoch: p.epoch, src: p.src, gen: p.src.Generation()}
}
