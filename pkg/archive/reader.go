package archive

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"golang.org/x/exp/constraints"
)

// Archive is an opened archive.
type Archive struct {
	file    *os.File
	header  Header
	table   *table
	objects []*Object
	meta    map[string]string
}

// Open opens an archive for reading.
func Open(path string) (*Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}

	a := &Archive{file: file}
	if err := a.readHeader(); err != nil {
		file.Close()
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if err := a.readTable(); err != nil {
		file.Close()
		return nil, fmt.Errorf("reading table: %w", err)
	}
	return a, nil
}

// Close closes the archive.
func (a *Archive) Close() error {
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

func (a *Archive) readHeader() error {
	if err := binary.Read(a.file, binary.LittleEndian, &a.header); err != nil {
		return ErrTruncated
	}
	if string(a.header.Magic[:]) != Magic {
		return ErrInvalidMagic
	}
	if a.header.Version == 0 || a.header.Version > Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, a.header.Version)
	}
	return nil
}

func (a *Archive) readTable() error {
	info, err := a.file.Stat()
	if err != nil {
		return err
	}
	end := a.header.TableOffset + uint64(a.header.TableCompressed)
	if a.header.TableOffset < headerSize || end > uint64(info.Size()) {
		return ErrTruncated
	}

	compressed := make([]byte, a.header.TableCompressed)
	if _, err := a.file.ReadAt(compressed, int64(a.header.TableOffset)); err != nil {
		return ErrTruncated
	}
	raw, err := inflate(compressed, a.header.TableSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptTable, err)
	}

	t, err := unmarshalTable(raw)
	if err != nil {
		return err
	}
	if len(t.objects) == 0 || t.objects[0].kind != KindTop {
		return fmt.Errorf("%w: missing top object", ErrCorruptTable)
	}
	a.table = t

	a.objects = make([]*Object, len(t.objects))
	for i := range t.objects {
		a.objects[i] = &Object{a: a, index: i, rec: &t.objects[i]}
	}
	for i, rec := range t.objects {
		if i == 0 {
			continue
		}
		if rec.parent < 0 || rec.parent >= i {
			return fmt.Errorf("%w: object %s has bad parent %d", ErrCorruptTable, rec.name, rec.parent)
		}
		if int(rec.sampling) >= len(t.samplings) {
			return fmt.Errorf("%w: object %s uses sampling %d", ErrCorruptTable, rec.name, rec.sampling)
		}
		parent := a.objects[rec.parent]
		parent.children = append(parent.children, a.objects[i])
	}
	for i := range t.props {
		rec := &t.props[i]
		if rec.object < 0 || rec.object >= len(a.objects) {
			return fmt.Errorf("%w: property %s has bad object %d", ErrCorruptTable, rec.name, rec.object)
		}
		if rec.pod.Size() == 0 || rec.extent == 0 {
			return fmt.Errorf("%w: property %s has bad type", ErrCorruptTable, rec.name)
		}
		obj := a.objects[rec.object]
		obj.props = append(obj.props, &Property{obj: obj, rec: rec})
	}

	a.meta = make(map[string]string, len(t.meta))
	for _, e := range t.meta {
		a.meta[e.key] = e.value
	}
	return nil
}

func inflate(compressed []byte, size uint32) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ID returns the archive identifier.
func (a *Archive) ID() uuid.UUID {
	return uuid.UUID(a.header.ID)
}

// Version returns the file format version.
func (a *Archive) Version() uint32 {
	return a.header.Version
}

// Metadata returns the archive-level metadata value for key.
func (a *Archive) Metadata(key string) string {
	return a.meta[key]
}

// MetadataKeys returns all metadata keys in sorted order.
func (a *Archive) MetadataKeys() []string {
	keys := make([]string, 0, len(a.meta))
	for k := range a.meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NumTimeSamplings returns the number of samplings, including the identity.
func (a *Archive) NumTimeSamplings() int {
	return len(a.table.samplings)
}

// TimeSampling returns the sampling at index i.
func (a *Archive) TimeSampling(i int) (TimeSampling, error) {
	if i < 0 || i >= len(a.table.samplings) {
		return TimeSampling{}, fmt.Errorf("%w: time sampling %d", ErrNoSample, i)
	}
	return a.table.samplings[i], nil
}

// Top returns the root object.
func (a *Archive) Top() *Object {
	return a.objects[0]
}

// Object is an object in an opened archive.
type Object struct {
	a        *Archive
	index    int
	rec      *objectRecord
	children []*Object
	props    []*Property
}

// Name returns the object name.
func (o *Object) Name() string { return o.rec.name }

// Kind returns the object schema.
func (o *Object) Kind() Kind { return o.rec.kind }

// TimeSamplingIndex returns the index of the object's sampling.
func (o *Object) TimeSamplingIndex() uint32 { return o.rec.sampling }

// NumSamples returns the number of samples of the object's schema.
func (o *Object) NumSamples() int { return int(o.rec.numSamples) }

// Parent returns the parent object, or nil for the top object.
func (o *Object) Parent() *Object {
	if o.rec.parent < 0 {
		return nil
	}
	return o.a.objects[o.rec.parent]
}

// NumChildren returns the number of child objects.
func (o *Object) NumChildren() int { return len(o.children) }

// Child returns the i-th child, or nil.
func (o *Object) Child(i int) *Object {
	if i < 0 || i >= len(o.children) {
		return nil
	}
	return o.children[i]
}

// ChildByName returns the named child, or nil.
func (o *Object) ChildByName(name string) *Object {
	for _, c := range o.children {
		if c.rec.name == name {
			return c
		}
	}
	return nil
}

// FullName returns the slash separated path from the top object.
func (o *Object) FullName() string {
	if o.rec.parent < 0 {
		return "/"
	}
	var parts []string
	for cur := o; cur.rec.parent >= 0; cur = cur.Parent() {
		parts = append([]string{cur.rec.name}, parts...)
	}
	return "/" + strings.Join(parts, "/")
}

// Properties returns the object's properties in creation order.
func (o *Object) Properties() []*Property { return o.props }

// Property returns the named property, or nil.
func (o *Object) Property(name string) *Property {
	for _, p := range o.props {
		if p.rec.name == name {
			return p
		}
	}
	return nil
}

// PolyMesh returns the polygon mesh schema of the object.
func (o *Object) PolyMesh() (*IPolyMesh, error) {
	if o.rec.kind != KindPolyMesh {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongKind, o.FullName(), o.rec.kind)
	}
	m := &IPolyMesh{
		obj: o,
		pos: o.Property(PropPositions),
		idx: o.Property(PropFaceIndices),
		cnt: o.Property(PropFaceCounts),
		uv:  o.Property(PropUV),
	}
	if m.pos == nil || m.idx == nil || m.cnt == nil {
		return nil, fmt.Errorf("%w: %s lacks mesh properties", ErrCorruptTable, o.FullName())
	}
	return m, nil
}

// PropertyHeader describes a property.
type PropertyHeader struct {
	Name         string
	POD          POD
	Extent       int
	Scope        Scope
	TimeSampling uint32
}

// Property is a property in an opened archive.
type Property struct {
	obj *Object
	rec *propertyRecord
}

// Header returns the property's type information.
func (p *Property) Header() PropertyHeader {
	return PropertyHeader{
		Name:         p.rec.name,
		POD:          p.rec.pod,
		Extent:       int(p.rec.extent),
		Scope:        p.rec.scope,
		TimeSampling: p.rec.sampling,
	}
}

// Name returns the property name.
func (p *Property) Name() string { return p.rec.name }

// NumSamples returns the number of stored samples.
func (p *Property) NumSamples() int { return len(p.rec.samples) }

// SampleIndex returns the time index of the i-th stored sample.
func (p *Property) SampleIndex(i int) uint32 { return p.rec.samples[i].index }

// ElementCount returns the element count of the i-th stored sample.
func (p *Property) ElementCount(i int) int { return int(p.rec.samples[i].count) }

// Lookup returns the stored sample holding time index t.
func (p *Property) Lookup(t uint32) (int, bool) {
	s := p.rec.samples
	i := sort.Search(len(s), func(i int) bool { return s[i].index >= t })
	if i < len(s) && s[i].index == t {
		return i, true
	}
	return 0, false
}

// ReadRaw returns the uncompressed bytes of the i-th stored sample.
func (p *Property) ReadRaw(i int) ([]byte, error) {
	if i < 0 || i >= len(p.rec.samples) {
		return nil, fmt.Errorf("%w: %s[%d]", ErrNoSample, p.rec.name, i)
	}
	ref := p.rec.samples[i]
	compressed := make([]byte, ref.compressed)
	if _, err := p.obj.a.file.ReadAt(compressed, int64(ref.offset)); err != nil {
		return nil, fmt.Errorf("%w: %s[%d]", ErrTruncated, p.rec.name, i)
	}
	raw, err := inflate(compressed, ref.size)
	if err != nil {
		return nil, fmt.Errorf("%s[%d]: %w", p.rec.name, i, err)
	}
	return raw, nil
}

func readValues[T constraints.Integer | constraints.Float](p *Property, i int, pod POD) ([]T, error) {
	if p.rec.pod != pod {
		return nil, fmt.Errorf("%w: %s is %s, not %s", ErrTypeMismatch, p.rec.name, p.rec.pod, pod)
	}
	raw, err := p.ReadRaw(i)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(raw)/pod.Size())
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", p.rec.name, err)
	}
	return out, nil
}

// Uint8s reads the i-th sample of a uint8 property.
func (p *Property) Uint8s(i int) ([]uint8, error) { return readValues[uint8](p, i, PODUint8) }

// Int32s reads the i-th sample of an int32 property.
func (p *Property) Int32s(i int) ([]int32, error) { return readValues[int32](p, i, PODInt32) }

// Float32s reads the i-th sample of a float32 property.
func (p *Property) Float32s(i int) ([]float32, error) { return readValues[float32](p, i, PODFloat32) }

// Float64s reads the i-th sample of a float64 property.
func (p *Property) Float64s(i int) ([]float64, error) { return readValues[float64](p, i, PODFloat64) }

func (p *Property) requireExtent(n int) error {
	if int(p.rec.extent) != n {
		return fmt.Errorf("%w: %s has extent %d, want %d", ErrTypeMismatch, p.rec.name, p.rec.extent, n)
	}
	return nil
}

// Vec2s reads the i-th sample of a 2-component float32 property.
func (p *Property) Vec2s(i int) ([]mgl32.Vec2, error) {
	if err := p.requireExtent(2); err != nil {
		return nil, err
	}
	f, err := p.Float32s(i)
	if err != nil {
		return nil, err
	}
	out := make([]mgl32.Vec2, len(f)/2)
	for j := range out {
		out[j] = mgl32.Vec2{f[2*j], f[2*j+1]}
	}
	return out, nil
}

// Vec3s reads the i-th sample of a 3-component float32 property.
func (p *Property) Vec3s(i int) ([]mgl32.Vec3, error) {
	if err := p.requireExtent(3); err != nil {
		return nil, err
	}
	f, err := p.Float32s(i)
	if err != nil {
		return nil, err
	}
	out := make([]mgl32.Vec3, len(f)/3)
	for j := range out {
		out[j] = mgl32.Vec3{f[3*j], f[3*j+1], f[3*j+2]}
	}
	return out, nil
}

// Vec4s reads the i-th sample of a 4-component float32 property.
func (p *Property) Vec4s(i int) ([]mgl32.Vec4, error) {
	if err := p.requireExtent(4); err != nil {
		return nil, err
	}
	f, err := p.Float32s(i)
	if err != nil {
		return nil, err
	}
	out := make([]mgl32.Vec4, len(f)/4)
	for j := range out {
		out[j] = mgl32.Vec4{f[4*j], f[4*j+1], f[4*j+2], f[4*j+3]}
	}
	return out, nil
}

// Bytes4 reads the i-th sample of a 4-component uint8 property.
func (p *Property) Bytes4(i int) ([][4]uint8, error) {
	if err := p.requireExtent(4); err != nil {
		return nil, err
	}
	b, err := p.Uint8s(i)
	if err != nil {
		return nil, err
	}
	out := make([][4]uint8, len(b)/4)
	for j := range out {
		copy(out[j][:], b[4*j:4*j+4])
	}
	return out, nil
}

// IPolyMesh is the polygon mesh schema of an opened object.
type IPolyMesh struct {
	obj           *Object
	pos, idx, cnt *Property
	uv            *Property
}

// Object returns the underlying object.
func (m *IPolyMesh) Object() *Object { return m.obj }

// NumSamples returns the number of mesh samples.
func (m *IPolyMesh) NumSamples() int { return m.pos.NumSamples() }

// HasUVs reports whether the default UV slot is populated.
func (m *IPolyMesh) HasUVs() bool { return m.uv != nil && m.uv.NumSamples() > 0 }

// Sample reads the mesh sample at time index t.
func (m *IPolyMesh) Sample(t int) (*PolyMeshSample, error) {
	i, ok := m.pos.Lookup(uint32(t))
	if !ok {
		return nil, fmt.Errorf("%w: %s sample %d", ErrNoSample, m.obj.FullName(), t)
	}
	s := &PolyMeshSample{}
	var err error
	if s.Positions, err = m.pos.Vec3s(i); err != nil {
		return nil, err
	}
	if j, ok := m.idx.Lookup(uint32(t)); ok {
		if s.FaceIndices, err = m.idx.Int32s(j); err != nil {
			return nil, err
		}
	}
	if j, ok := m.cnt.Lookup(uint32(t)); ok {
		if s.FaceCounts, err = m.cnt.Int32s(j); err != nil {
			return nil, err
		}
	}
	if m.uv != nil {
		if j, ok := m.uv.Lookup(uint32(t)); ok {
			if s.UVs, err = m.uv.Vec2s(j); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// GeomParams returns the arbitrary geometry parameters of the mesh.
func (m *IPolyMesh) GeomParams() []*Property {
	var out []*Property
	for _, p := range m.obj.props {
		if strings.HasPrefix(p.rec.name, ArbGeomPrefix) {
			out = append(out, p)
		}
	}
	return out
}

// GeomParam returns the named geometry parameter, or nil.
func (m *IPolyMesh) GeomParam(name string) *Property {
	return m.obj.Property(ArbGeomPrefix + name)
}
