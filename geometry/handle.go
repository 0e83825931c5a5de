package geometry

import "github.com/tkoenig/meshact/mesh"

// Handle allows querying the vertices, edges, and triangles of a mesh
// snapshot. It observes the mesh by reference: the underlying collections
// may change between passes, but a single pass from Begin to End must not
// race with mesh mutation. A handle must not outlive the mesh it was built
// from.
type Handle struct {
	vertices  VertexHandle
	edges     EdgeHandle
	triangles TriangleHandle
}

// NewHandle builds a handle over the current state of m.
func NewHandle(m *mesh.Mesh) Handle {
	return Handle{
		vertices:  VertexHandle{src: meshVertices{m}},
		edges:     EdgeHandle{src: meshEdges{m}},
		triangles: TriangleHandle{src: meshTriangles{m}},
	}
}

// Vertices returns the handle for vertex iteration.
func (h Handle) Vertices() VertexHandle { return h.vertices }

// Edges returns the handle for edge iteration.
func (h Handle) Edges() EdgeHandle { return h.edges }

// Triangles returns the handle for triangle iteration.
func (h Handle) Triangles() TriangleHandle { return h.triangles }

// meshVertices, meshEdges, and meshTriangles are the concrete cursor
// implementations over mesh.Mesh. They are comparable single-field structs
// so cursors from independent handles over the same mesh compare equal at
// equal positions.

type meshVertices struct {
	m *mesh.Mesh
}

func (s meshVertices) count() int             { return s.m.VertexCount() }
func (s meshVertices) id(i int) int           { return i }
func (s meshVertices) coords(i int) []float64 { return s.m.VertexCoords(i) }

type meshEdges struct {
	m *mesh.Mesh
}

func (s meshEdges) count() int { return s.m.EdgeCount() }
func (s meshEdges) cornerID(i, corner int) int {
	return s.m.EdgeVertex(i, corner)
}
func (s meshEdges) cornerCoords(i, corner int) []float64 {
	return s.m.VertexCoords(s.m.EdgeVertex(i, corner))
}

type meshTriangles struct {
	m *mesh.Mesh
}

func (s meshTriangles) count() int { return s.m.TriangleCount() }
func (s meshTriangles) cornerID(i, corner int) int {
	return s.m.TriangleVertex(i, corner)
}
func (s meshTriangles) cornerCoords(i, corner int) []float64 {
	return s.m.VertexCoords(s.m.TriangleVertex(i, corner))
}
