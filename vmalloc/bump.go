package vmalloc

import (
	"sync"
	"unsafe"

	"go.uber.org/multierr"

	"github.com/joshuapare/vmheap/memory"
)

// blockAlign is the alignment of every block the bump method hands out.
const blockAlign = 16

// Bump is the default heap method. It allocates by advancing a pointer
// through the newest segment and reclaims space only when the last block of
// a segment is freed. Segments left without busy blocks are given back to
// the discipline.
var Bump Method = bumpMethod{}

type bumpMethod struct{}

func (bumpMethod) Name() string { return "bump" }

func (bumpMethod) Open(disc *memory.Discipline, owner memory.Reporter) (Methods, error) {
	return &bump{
		disc:   disc,
		owner:  owner,
		gran:   disc.Granularity(),
		blocks: make(map[uintptr]*block),
	}, nil
}

// segment is one span obtained from the discipline. Its blocks are kept in
// address order; next is where the following block goes.
type segment struct {
	addr   uintptr
	size   uintptr
	next   uintptr
	busy   int
	blocks []*block
}

func (s *segment) end() uintptr { return s.addr + s.size }

func (s *segment) last(blk *block) bool {
	return len(s.blocks) > 0 && s.blocks[len(s.blocks)-1] == blk
}

type block struct {
	seg  *segment
	addr uintptr
	size uintptr
	free bool
}

type bump struct {
	mu     sync.Mutex
	disc   *memory.Discipline
	owner  memory.Reporter
	gran   uintptr
	segs   []*segment
	blocks map[uintptr]*block
	closed bool
}

func (b *bump) lock(flags Flags) func() {
	if flags&Local != 0 {
		return func() {}
	}
	b.mu.Lock()
	return b.mu.Unlock
}

func (b *bump) current() *segment {
	if len(b.segs) == 0 {
		return nil
	}
	return b.segs[len(b.segs)-1]
}

func blockSize(size uintptr) (uintptr, error) {
	if size == 0 {
		size = 1
	}
	if size > ^uintptr(0)-(blockAlign-1) {
		return 0, ErrTooLarge
	}
	return alignUp(size, blockAlign), nil
}

// fits reports whether need bytes starting at start end by limit.
func fits(start, need, limit uintptr) bool {
	return start <= limit && need <= limit-start
}

func alignUp(n, a uintptr) uintptr {
	return (n + a - 1) &^ (a - 1)
}

func (b *bump) Alloc(size uintptr, flags Flags) (uintptr, error) {
	defer b.lock(flags)()
	if b.closed {
		return 0, ErrClosed
	}
	need, err := blockSize(size)
	if err != nil {
		return 0, err
	}
	return b.alloc(need, blockAlign)
}

func (b *bump) Align(size, align uintptr, flags Flags) (uintptr, error) {
	if align == 0 || align&(align-1) != 0 {
		return 0, ErrBadAlign
	}
	defer b.lock(flags)()
	if b.closed {
		return 0, ErrClosed
	}
	need, err := blockSize(size)
	if err != nil {
		return 0, err
	}
	return b.alloc(need, max(align, blockAlign))
}

// alloc places a block of need bytes at the given alignment: in the current
// segment, in the current segment grown in place, or in a new segment.
func (b *bump) alloc(need, align uintptr) (uintptr, error) {
	if need > ^uintptr(0)-align-b.gran {
		return 0, ErrTooLarge
	}
	if seg := b.current(); seg != nil {
		start := alignUp(seg.next, align)
		if start >= seg.next && (fits(start, need, seg.end()) || b.extend(seg, start, need)) {
			return b.place(seg, start, need), nil
		}
	}

	size := alignUp(need+align, b.gran)
	addr, err := b.disc.Memory(b.owner, 0, 0, size)
	if err != nil {
		return 0, err
	}
	seg := &segment{addr: addr, size: size, next: addr}
	b.segs = append(b.segs, seg)
	return b.place(seg, alignUp(addr, align), need), nil
}

// extend grows seg in place so it holds need bytes from start.
func (b *bump) extend(seg *segment, start, need uintptr) bool {
	span := start - seg.addr
	if need > ^uintptr(0)-span-b.gran || seg.addr > ^uintptr(0)-span-need {
		return false
	}
	size := alignUp(span+need, b.gran)
	if _, err := b.disc.Memory(b.owner, seg.addr, seg.size, size); err != nil {
		return false
	}
	seg.size = size
	return true
}

func (b *bump) place(seg *segment, start, need uintptr) uintptr {
	blk := &block{seg: seg, addr: start, size: need}
	seg.blocks = append(seg.blocks, blk)
	seg.next = start + need
	seg.busy++
	b.blocks[start] = blk
	return start
}

func (b *bump) Free(addr uintptr, flags Flags) error {
	defer b.lock(flags)()
	if b.closed {
		return ErrClosed
	}
	blk, ok := b.blocks[addr]
	if !ok {
		return ErrBadAddr
	}
	b.free(blk)
	return nil
}

func (b *bump) free(blk *block) {
	seg := blk.seg
	delete(b.blocks, blk.addr)
	blk.free = true
	seg.busy--

	// Move the bump pointer back over trailing free blocks.
	for len(seg.blocks) > 0 && seg.blocks[len(seg.blocks)-1].free {
		seg.blocks = seg.blocks[:len(seg.blocks)-1]
	}
	seg.next = seg.addr
	if n := len(seg.blocks); n > 0 {
		seg.next = seg.blocks[n-1].addr + seg.blocks[n-1].size
	}

	if seg.busy == 0 && seg != b.current() {
		b.release(seg)
	}
}

// release gives an empty segment back to the discipline. A segment the
// discipline refuses stays in the list.
func (b *bump) release(seg *segment) {
	if _, err := b.disc.Memory(b.owner, seg.addr, seg.size, 0); err != nil {
		return
	}
	for i, s := range b.segs {
		if s == seg {
			b.segs = append(b.segs[:i], b.segs[i+1:]...)
			break
		}
	}
}

func (b *bump) Resize(addr, size uintptr, flags Flags) (uintptr, error) {
	defer b.lock(flags)()
	if b.closed {
		return 0, ErrClosed
	}
	blk, ok := b.blocks[addr]
	if !ok {
		return 0, ErrBadAddr
	}
	need, err := blockSize(size)
	if err != nil {
		return 0, err
	}
	seg := blk.seg
	old := blk.size

	if seg.last(blk) {
		if fits(addr, need, seg.end()) || (seg == b.current() && b.extend(seg, addr, need)) {
			blk.size = need
			seg.next = addr + need
			if flags&Zero != 0 && need > old {
				clear(bytesAt(addr+old, need-old))
			}
			return addr, nil
		}
	} else if need <= old {
		return addr, nil
	}

	if flags&Move == 0 {
		return 0, ErrNoSpace
	}
	naddr, err := b.alloc(need, blockAlign)
	if err != nil {
		return 0, err
	}
	kept := uintptr(0)
	if flags&Copy != 0 {
		kept = min(old, need)
		copy(bytesAt(naddr, kept), bytesAt(addr, kept))
	}
	if flags&Zero != 0 {
		clear(bytesAt(naddr+kept, need-kept))
	}
	b.free(blk)
	return naddr, nil
}

func (b *bump) Stat(st *memory.Stat, flags Flags) error {
	defer b.lock(flags)()
	*st = memory.Stat{Mode: Bump.Name()}
	for _, seg := range b.segs {
		st.NSeg++
		st.Extent += seg.size
		for _, blk := range seg.blocks {
			if blk.free {
				st.NFree++
				st.SFree += blk.size
				st.MFree = max(st.MFree, blk.size)
				continue
			}
			st.NBusy++
			st.SBusy += blk.size
			st.MBusy = max(st.MBusy, blk.size)
		}
		if tail := seg.end() - seg.next; tail > 0 {
			st.NFree++
			st.SFree += tail
			st.MFree = max(st.MFree, tail)
		}
	}
	return nil
}

func (b *bump) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.closed = true

	var errs error
	for i := len(b.segs) - 1; i >= 0; i-- {
		seg := b.segs[i]
		if _, err := b.disc.Memory(b.owner, seg.addr, seg.size, 0); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	b.segs = nil
	clear(b.blocks)
	return errs
}

// bytesAt views n bytes of region memory at addr.
func bytesAt(addr, n uintptr) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}
