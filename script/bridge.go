package script

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/tetratelabs/wazero/api"

	"github.com/tkoenig/meshact/mesh"
)

// Bridge is a foreign-visible, mutable view over a contiguous float64
// buffer placed in guest memory. Writes through the view are observed by
// the guest and vice versa; nothing is copied per access.
//
// The view aliases the guest's linear memory and dies when that memory
// grows. Valid reports whether the view still holds; a stale view must be
// remapped before further use, never read or written.
type Bridge struct {
	mem     api.Memory
	ptr     uint32
	n       int // float64 count
	dim     int // values per vertex
	view    []float64
	memSize uint32 // guest memory size when the view was taken
}

// Expose wraps a mesh field into a guest-memory buffer. The field's
// current contents seed the buffer, then the field's storage is
// re-attached to the shared view: from here on, host writes to the field
// and guest writes to the buffer hit the same bytes. The caller must
// Detach the field before the module goes away.
//
// When exposing several buffers for one invocation, use AllocBuffer for
// all of them first and Remap afterwards: each allocation can grow guest
// memory, killing views already taken.
func Expose(ctx context.Context, b *Binding, field *mesh.Data) (*Bridge, error) {
	br, err := AllocBuffer(ctx, b, len(field.Values()), field.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("expose field %q: %w", field.Name(), err)
	}
	if err := br.Remap(); err != nil {
		return nil, fmt.Errorf("expose field %q: %w", field.Name(), err)
	}
	copy(br.view, field.Values())
	field.Attach(br.view)
	return br, nil
}

// NewScratch allocates an n-float scratch buffer in guest memory, used for
// per-vertex coordinate hand-off.
func NewScratch(ctx context.Context, b *Binding, n int) (*Bridge, error) {
	br, err := AllocBuffer(ctx, b, n, n)
	if err != nil {
		return nil, fmt.Errorf("allocate scratch buffer: %w", err)
	}
	if err := br.Remap(); err != nil {
		return nil, fmt.Errorf("allocate scratch buffer: %w", err)
	}
	return br, nil
}

// AllocBuffer reserves guest space for an n-float buffer without taking a
// view; the returned bridge is not usable until Remap. Splitting
// allocation from view-taking lets a caller place every buffer of an
// invocation before mapping any of them.
func AllocBuffer(ctx context.Context, b *Binding, n, dim int) (*Bridge, error) {
	mem := b.Memory()
	if n == 0 {
		return &Bridge{mem: mem, dim: dim, memSize: mem.Size()}, nil
	}

	ptr, err := b.Alloc(ctx, uint32(n*8))
	if err != nil {
		return nil, err
	}
	if ptr%8 != 0 {
		return nil, fmt.Errorf("allocator returned unaligned offset %d", ptr)
	}
	return &Bridge{mem: mem, ptr: ptr, n: n, dim: dim}, nil
}

// Remap takes the []float64 view over the current guest memory. Growth
// preserves contents and offsets, only the backing buffer moves, so
// remapping a stale bridge restores a live view over the same bytes.
func (br *Bridge) Remap() error {
	br.memSize = br.mem.Size()
	if br.n == 0 {
		return nil
	}

	size := uint32(br.n * 8)
	// Memory.Read returns a view into the backing buffer, not a copy.
	raw, ok := br.mem.Read(br.ptr, size)
	if !ok {
		return fmt.Errorf("buffer region [%d, %d) out of range", br.ptr, br.ptr+size)
	}
	br.view = unsafe.Slice((*float64)(unsafe.Pointer(&raw[0])), br.n)
	return nil
}

// Len returns the number of float64 values in the buffer.
func (br *Bridge) Len() int { return br.n }

// Floats returns the shared view. Mutations are visible to the guest
// immediately.
func (br *Bridge) Floats() []float64 { return br.view }

// Valid reports whether the view still aliases live guest memory. Growth
// of the guest memory invalidates the view.
func (br *Bridge) Valid() bool { return br.mem.Size() == br.memSize }

// appendArgs appends the (ptr, len) argument pair for the whole buffer. A
// nil bridge contributes (0, 0), the convention for an absent buffer.
func (br *Bridge) appendArgs(params []uint64) []uint64 {
	if br == nil {
		return append(params, 0, 0)
	}
	return append(params, api.EncodeU32(br.ptr), api.EncodeU32(uint32(br.n)))
}

// appendVertexArgs appends the (ptr, len) pair for one vertex's dim-sized
// window of the buffer.
func (br *Bridge) appendVertexArgs(params []uint64, id int) []uint64 {
	if br == nil {
		return append(params, 0, 0)
	}
	return append(params,
		api.EncodeU32(br.ptr+uint32(id*br.dim*8)),
		api.EncodeU32(uint32(br.dim)))
}
