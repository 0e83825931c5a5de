// Package mesh provides the vertex/edge/triangle storage and per-vertex
// field data that actions operate on.
package mesh

import (
	"encoding/json"
	"fmt"
	"os"
)

// Mesh is an ordered collection of vertices, edges, and triangles.
// All arrays are flat: coords has dim floats per vertex, edges has 2 vertex
// ids per edge, triangles has 3 vertex ids per triangle. Vertex ids are
// assigned densely in insertion order.
type Mesh struct {
	dim       int
	coords    []float64
	edges     []int
	triangles []int
	data      map[string]*Data
}

// New creates an empty mesh with the given coordinate dimensionality
// (2 or 3).
func New(dim int) *Mesh {
	if dim < 2 || dim > 3 {
		panic(fmt.Sprintf("mesh: dimensionality must be 2 or 3, got %d", dim))
	}
	return &Mesh{
		dim:  dim,
		data: make(map[string]*Data),
	}
}

// Dimensions returns the coordinate dimensionality of the mesh.
func (m *Mesh) Dimensions() int { return m.dim }

// AddVertex appends a vertex and returns its id. The number of coordinates
// must match the mesh dimensionality.
func (m *Mesh) AddVertex(coords ...float64) int {
	if len(coords) != m.dim {
		panic(fmt.Sprintf("mesh: vertex has %d coords, mesh is %d-dimensional", len(coords), m.dim))
	}
	id := m.VertexCount()
	m.coords = append(m.coords, coords...)
	for _, d := range m.data {
		d.grow(1)
	}
	return id
}

// AddEdge appends an edge connecting two existing vertices.
func (m *Mesh) AddEdge(a, b int) {
	m.checkVertex(a)
	m.checkVertex(b)
	m.edges = append(m.edges, a, b)
}

// AddTriangle appends a triangle connecting three existing vertices.
func (m *Mesh) AddTriangle(a, b, c int) {
	m.checkVertex(a)
	m.checkVertex(b)
	m.checkVertex(c)
	m.triangles = append(m.triangles, a, b, c)
}

func (m *Mesh) checkVertex(id int) {
	if id < 0 || id >= m.VertexCount() {
		panic(fmt.Sprintf("mesh: vertex id %d out of range [0, %d)", id, m.VertexCount()))
	}
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.coords) / m.dim }

// EdgeCount returns the number of edges.
func (m *Mesh) EdgeCount() int { return len(m.edges) / 2 }

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int { return len(m.triangles) / 3 }

// VertexCoords returns the coordinates of the given vertex. The returned
// slice aliases the mesh's storage and must not be resized.
func (m *Mesh) VertexCoords(id int) []float64 {
	m.checkVertex(id)
	return m.coords[id*m.dim : (id+1)*m.dim : (id+1)*m.dim]
}

// EdgeVertex returns the vertex id of the given corner (0 or 1) of an edge.
func (m *Mesh) EdgeVertex(edge, corner int) int {
	return m.edges[edge*2+corner]
}

// TriangleVertex returns the vertex id of the given corner (0, 1, or 2) of
// a triangle.
func (m *Mesh) TriangleVertex(triangle, corner int) int {
	return m.triangles[triangle*3+corner]
}

// CreateData creates a named per-vertex field with the given number of
// values per vertex, sized to the current vertex count. Creating a field
// that already exists replaces it.
func (m *Mesh) CreateData(name string, dim int) *Data {
	d := newData(name, dim, m.VertexCount())
	m.data[name] = d
	return d
}

// Data returns the named field, or nil if it does not exist.
func (m *Mesh) Data(name string) *Data { return m.data[name] }

// DataNames returns the names of all fields attached to the mesh.
func (m *Mesh) DataNames() []string {
	names := make([]string, 0, len(m.data))
	for name := range m.data {
		names = append(names, name)
	}
	return names
}

// meshFile is the on-disk JSON representation used by the driver CLI.
type meshFile struct {
	Dimensions int       `json:"dimensions"`
	Vertices   []float64 `json:"vertices"`  // [x0,y0,z0, x1,y1,z1, ...]
	Edges      []int     `json:"edges"`     // [a0,b0, a1,b1, ...]
	Triangles  []int     `json:"triangles"` // [a0,b0,c0, ...]
}

// LoadFile reads a mesh from a JSON file.
func LoadFile(path string) (*Mesh, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mesh file: %w", err)
	}

	var f meshFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse mesh file %s: %w", path, err)
	}
	if f.Dimensions < 2 || f.Dimensions > 3 {
		return nil, fmt.Errorf("mesh file %s: dimensions must be 2 or 3, got %d", path, f.Dimensions)
	}
	if len(f.Vertices)%f.Dimensions != 0 {
		return nil, fmt.Errorf("mesh file %s: vertex array length %d not a multiple of %d", path, len(f.Vertices), f.Dimensions)
	}
	if len(f.Edges)%2 != 0 {
		return nil, fmt.Errorf("mesh file %s: edge array length %d not a multiple of 2", path, len(f.Edges))
	}
	if len(f.Triangles)%3 != 0 {
		return nil, fmt.Errorf("mesh file %s: triangle array length %d not a multiple of 3", path, len(f.Triangles))
	}

	m := New(f.Dimensions)
	for i := 0; i < len(f.Vertices); i += f.Dimensions {
		m.AddVertex(f.Vertices[i : i+f.Dimensions]...)
	}
	for i := 0; i < len(f.Edges); i += 2 {
		m.AddEdge(f.Edges[i], f.Edges[i+1])
	}
	for i := 0; i < len(f.Triangles); i += 3 {
		m.AddTriangle(f.Triangles[i], f.Triangles[i+1], f.Triangles[i+2])
	}
	return m, nil
}
