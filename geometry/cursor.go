// Package geometry provides a stable, read-only iteration interface over a
// mesh's vertices, edges, and triangles. Cursors hide the mesh's internal
// storage behind an opaque per-kind implementation so code that only needs
// geometric traversal never depends on the mesh's concrete layout.
package geometry

import "iter"

// vertexSource is the opaque implementation behind vertex cursors. Concrete
// sources must be comparable values identifying the snapshot they iterate,
// so that cursors obtained from independent handles over the same snapshot
// compare equal at the same position.
type vertexSource interface {
	count() int
	id(i int) int
	coords(i int) []float64
}

// cornerSource is the opaque implementation behind edge and triangle
// cursors: elements addressed by index, vertices addressed by corner.
type cornerSource interface {
	count() int
	cornerID(i, corner int) int
	cornerCoords(i, corner int) []float64
}

// VertexCursor is a forward-only cursor over a snapshot's vertices.
//
// The zero value is a valid "null" cursor: usable for assignment and
// comparison, never for access or Next. Copies are independent; advancing
// one does not move the other. Accessors are valid only while the cursor is
// not at the end position and the snapshot is unchanged since the cursor
// was obtained. Advancing past the end position is a precondition
// violation.
type VertexCursor struct {
	src vertexSource
	pos int
}

// Next advances the cursor by exactly one vertex.
func (c *VertexCursor) Next() { c.pos++ }

// Equal reports whether both cursors address the same position within the
// same snapshot. All null cursors compare equal to each other.
func (c VertexCursor) Equal(o VertexCursor) bool {
	return c.src == o.src && c.pos == o.pos
}

// VertexID returns the id of the current vertex.
func (c VertexCursor) VertexID() int { return c.src.id(c.pos) }

// VertexCoords returns the coordinates of the current vertex. The returned
// slice aliases the snapshot's storage.
func (c VertexCursor) VertexCoords() []float64 { return c.src.coords(c.pos) }

// EdgeCursor is a forward-only cursor over a snapshot's edges. Same value
// semantics and preconditions as VertexCursor.
type EdgeCursor struct {
	src cornerSource
	pos int
}

// Next advances the cursor by exactly one edge.
func (c *EdgeCursor) Next() { c.pos++ }

// Equal reports whether both cursors address the same position within the
// same snapshot.
func (c EdgeCursor) Equal(o EdgeCursor) bool {
	return c.src == o.src && c.pos == o.pos
}

// VertexID returns the id of the edge's corner vertex (0 or 1).
func (c EdgeCursor) VertexID(corner int) int { return c.src.cornerID(c.pos, corner) }

// VertexCoords returns the coordinates of the edge's corner vertex.
func (c EdgeCursor) VertexCoords(corner int) []float64 {
	return c.src.cornerCoords(c.pos, corner)
}

// TriangleCursor is a forward-only cursor over a snapshot's triangles. Same
// value semantics and preconditions as VertexCursor.
type TriangleCursor struct {
	src cornerSource
	pos int
}

// Next advances the cursor by exactly one triangle.
func (c *TriangleCursor) Next() { c.pos++ }

// Equal reports whether both cursors address the same position within the
// same snapshot.
func (c TriangleCursor) Equal(o TriangleCursor) bool {
	return c.src == o.src && c.pos == o.pos
}

// VertexID returns the id of the triangle's corner vertex (0, 1, or 2).
func (c TriangleCursor) VertexID(corner int) int { return c.src.cornerID(c.pos, corner) }

// VertexCoords returns the coordinates of the triangle's corner vertex.
func (c TriangleCursor) VertexCoords(corner int) []float64 {
	return c.src.cornerCoords(c.pos, corner)
}

// VertexHandle offers Begin, End, and Size over a snapshot's vertices.
type VertexHandle struct {
	src vertexSource
}

// Begin returns a cursor positioned at the first vertex.
func (h VertexHandle) Begin() VertexCursor { return VertexCursor{src: h.src} }

// End returns the sentinel cursor one past the last vertex.
func (h VertexHandle) End() VertexCursor {
	return VertexCursor{src: h.src, pos: h.src.count()}
}

// Size returns the vertex count in O(1), consistent with the number of
// steps from Begin to End.
func (h VertexHandle) Size() int { return h.src.count() }

// All returns an iterator over all vertex cursors in iteration order.
func (h VertexHandle) All() iter.Seq[VertexCursor] {
	return func(yield func(VertexCursor) bool) {
		for c, end := h.Begin(), h.End(); !c.Equal(end); c.Next() {
			if !yield(c) {
				return
			}
		}
	}
}

// EdgeHandle offers Begin, End, and Size over a snapshot's edges.
type EdgeHandle struct {
	src cornerSource
}

// Begin returns a cursor positioned at the first edge.
func (h EdgeHandle) Begin() EdgeCursor { return EdgeCursor{src: h.src} }

// End returns the sentinel cursor one past the last edge.
func (h EdgeHandle) End() EdgeCursor { return EdgeCursor{src: h.src, pos: h.src.count()} }

// Size returns the edge count in O(1).
func (h EdgeHandle) Size() int { return h.src.count() }

// All returns an iterator over all edge cursors in iteration order.
func (h EdgeHandle) All() iter.Seq[EdgeCursor] {
	return func(yield func(EdgeCursor) bool) {
		for c, end := h.Begin(), h.End(); !c.Equal(end); c.Next() {
			if !yield(c) {
				return
			}
		}
	}
}

// TriangleHandle offers Begin, End, and Size over a snapshot's triangles.
type TriangleHandle struct {
	src cornerSource
}

// Begin returns a cursor positioned at the first triangle.
func (h TriangleHandle) Begin() TriangleCursor { return TriangleCursor{src: h.src} }

// End returns the sentinel cursor one past the last triangle.
func (h TriangleHandle) End() TriangleCursor {
	return TriangleCursor{src: h.src, pos: h.src.count()}
}

// Size returns the triangle count in O(1).
func (h TriangleHandle) Size() int { return h.src.count() }

// All returns an iterator over all triangle cursors in iteration order.
func (h TriangleHandle) All() iter.Seq[TriangleCursor] {
	return func(yield func(TriangleCursor) bool) {
		for c, end := h.Begin(), h.End(); !c.Equal(end); c.Next() {
			if !yield(c) {
				return
			}
		}
	}
}
