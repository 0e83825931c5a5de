package mesh

// Data is a named, contiguous array of per-vertex values. A field holds dim
// float64 values per vertex, indexed by vertex id. The backing storage can
// be re-attached to externally owned memory (see Attach), which is how
// script buffers share it without copying.
type Data struct {
	name   string
	dim    int
	values []float64
}

func newData(name string, dim, vertexCount int) *Data {
	return &Data{
		name:   name,
		dim:    dim,
		values: make([]float64, dim*vertexCount),
	}
}

// Name returns the field name.
func (d *Data) Name() string { return d.name }

// Dimensions returns the number of values stored per vertex.
func (d *Data) Dimensions() int { return d.dim }

// Values returns the field's backing array. Writes through the returned
// slice are writes to the field.
func (d *Data) Values() []float64 { return d.values }

// VertexValues returns the dim-sized window of the given vertex. The
// returned slice aliases the backing array.
func (d *Data) VertexValues(id int) []float64 {
	return d.values[id*d.dim : (id+1)*d.dim : (id+1)*d.dim]
}

// Set copies vals into the field. It panics if the lengths differ.
func (d *Data) Set(vals []float64) {
	if len(vals) != len(d.values) {
		panic("mesh: field value count mismatch")
	}
	copy(d.values, vals)
}

// Attach replaces the field's backing storage with buf. Existing contents
// are not copied; callers seed buf first. Used to point the field at
// foreign-owned memory so both sides observe the same bytes.
func (d *Data) Attach(buf []float64) {
	d.values = buf
}

// Detach copies the current contents into freshly host-owned storage.
// Called when foreign memory backing the field is about to go away.
func (d *Data) Detach() {
	vals := make([]float64, len(d.values))
	copy(vals, d.values)
	d.values = vals
}

func (d *Data) grow(vertices int) {
	d.values = append(d.values, make([]float64, vertices*d.dim)...)
}
