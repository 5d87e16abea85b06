package archive

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Writer creates an archive. Samples are streamed to disk as they are set;
// the table is written by Close. A Writer is not safe for concurrent use.
type Writer struct {
	file   *os.File
	path   string
	header Header
	offset uint64
	table  table
	names  map[int]map[string]bool // sibling names per parent object
	closed bool
	err    error
}

// Create creates the archive file at path, truncating any existing file.
func Create(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}

	w := &Writer{
		file:   file,
		path:   path,
		offset: headerSize,
		names:  make(map[int]map[string]bool),
	}
	copy(w.header.Magic[:], Magic)
	w.header.Version = Version
	w.header.ID = uuid.New()

	w.table.samplings = []TimeSampling{Identity}
	w.table.objects = []objectRecord{{name: "ABC", kind: KindTop, parent: -1}}

	if err := binary.Write(file, binary.LittleEndian, &w.header); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("writing header: %w", err)
	}
	return w, nil
}

// Path returns the file path being written.
func (w *Writer) Path() string {
	return w.path
}

// ID returns the archive identifier.
func (w *Writer) ID() uuid.UUID {
	return uuid.UUID(w.header.ID)
}

// SetMetadata records an archive-level key/value pair.
func (w *Writer) SetMetadata(key, value string) {
	for i := range w.table.meta {
		if w.table.meta[i].key == key {
			w.table.meta[i].value = value
			return
		}
	}
	w.table.meta = append(w.table.meta, metaEntry{key: key, value: value})
}

// AddTimeSampling registers a sampling and returns its index. An equal,
// already registered sampling is reused.
func (w *Writer) AddTimeSampling(ts TimeSampling) (uint32, error) {
	if err := ts.Validate(); err != nil {
		return 0, err
	}
	for i, existing := range w.table.samplings {
		if existing.Equal(ts) {
			return uint32(i), nil
		}
	}
	ts.Times = append([]float64(nil), ts.Times...)
	w.table.samplings = append(w.table.samplings, ts)
	return uint32(len(w.table.samplings) - 1), nil
}

// Top returns the root object.
func (w *Writer) Top() *OObject {
	return &OObject{w: w, index: 0}
}

func (w *Writer) check() error {
	if w.closed {
		return ErrClosed
	}
	return w.err
}

func (w *Writer) addObject(parent int, name string, kind Kind, sampling uint32) (int, error) {
	if err := w.check(); err != nil {
		return 0, err
	}
	if int(sampling) >= len(w.table.samplings) {
		return 0, fmt.Errorf("%w: index %d", ErrBadTimeSampling, sampling)
	}
	siblings := w.names[parent]
	if siblings == nil {
		siblings = make(map[string]bool)
		w.names[parent] = siblings
	}
	if siblings[name] {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	siblings[name] = true

	w.table.objects = append(w.table.objects, objectRecord{
		name:     name,
		kind:     kind,
		parent:   parent,
		sampling: sampling,
	})
	return len(w.table.objects) - 1, nil
}

func (w *Writer) addProperty(object int, name string, pod POD, extent uint8, scope Scope, sampling uint32) (int, error) {
	if err := w.check(); err != nil {
		return 0, err
	}
	if int(sampling) >= len(w.table.samplings) {
		return 0, fmt.Errorf("%w: index %d", ErrBadTimeSampling, sampling)
	}
	for _, p := range w.table.props {
		if p.object == object && p.name == name {
			return 0, fmt.Errorf("%w: property %s", ErrDuplicateName, name)
		}
	}
	w.table.props = append(w.table.props, propertyRecord{
		object:   object,
		name:     name,
		pod:      pod,
		extent:   extent,
		scope:    scope,
		sampling: sampling,
	})
	return len(w.table.props) - 1, nil
}

// writeSample compresses values and appends them as the sample at index.
func (w *Writer) writeSample(prop int, index uint32, values any) error {
	if err := w.check(); err != nil {
		return err
	}
	p := &w.table.props[prop]
	if n := len(p.samples); n > 0 && p.samples[n-1].index >= index {
		return fmt.Errorf("%w: %s sample %d after %d", ErrSampleOrder, p.name, index, p.samples[n-1].index)
	}

	pod, scalars, err := describeValues(values)
	if err != nil {
		return err
	}
	if pod != p.pod {
		return fmt.Errorf("%w: %s is %s, got %s", ErrTypeMismatch, p.name, p.pod, pod)
	}
	if scalars%int(p.extent) != 0 {
		return fmt.Errorf("%w: %s has extent %d, got %d scalars", ErrTypeMismatch, p.name, p.extent, scalars)
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if err := binary.Write(zw, binary.LittleEndian, values); err != nil {
		return fmt.Errorf("encoding %s: %w", p.name, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compressing %s: %w", p.name, err)
	}

	if _, err := w.file.Write(buf.Bytes()); err != nil {
		w.err = fmt.Errorf("writing sample: %w", err)
		return w.err
	}

	p.samples = append(p.samples, sampleRef{
		index:      index,
		offset:     w.offset,
		compressed: uint32(buf.Len()),
		size:       uint32(scalars * pod.Size()),
		count:      uint32(scalars / int(p.extent)),
	})
	w.offset += uint64(buf.Len())
	return nil
}

// Close writes the table and header and closes the file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.err != nil {
		w.file.Close()
		return w.err
	}

	raw := w.table.marshal()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(raw)
	if err := zw.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("compressing table: %w", err)
	}

	w.header.TableOffset = w.offset
	w.header.TableCompressed = uint32(buf.Len())
	w.header.TableSize = uint32(len(raw))

	if _, err := w.file.Write(buf.Bytes()); err != nil {
		w.file.Close()
		return fmt.Errorf("writing table: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		w.file.Close()
		return err
	}
	if err := binary.Write(w.file, binary.LittleEndian, &w.header); err != nil {
		w.file.Close()
		return fmt.Errorf("writing header: %w", err)
	}
	return w.file.Close()
}

// Abort closes the file without finishing it and removes it.
func (w *Writer) Abort() error {
	if !w.closed {
		w.closed = true
		w.file.Close()
	}
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// OObject is an object being written.
type OObject struct {
	w     *Writer
	index int
}

// Name returns the object name.
func (o *OObject) Name() string {
	return o.w.table.objects[o.index].name
}

// AddXform adds a transform child holding a single identity matrix.
func (o *OObject) AddXform(name string, sampling uint32) (*OXform, error) {
	idx, err := o.w.addObject(o.index, name, KindXform, sampling)
	if err != nil {
		return nil, err
	}
	prop, err := o.w.addProperty(idx, PropXform, PODFloat64, 16, ScopeConstant, 0)
	if err != nil {
		return nil, err
	}
	identity := mgl32.Ident4()
	m := make([]float64, 16)
	for i, v := range identity {
		m[i] = float64(v)
	}
	if err := o.w.writeSample(prop, 0, m); err != nil {
		return nil, err
	}
	o.w.table.objects[idx].numSamples = 1
	return &OXform{OObject{w: o.w, index: idx}}, nil
}

// OXform is a transform object being written.
type OXform struct {
	OObject
}

// AddPolyMesh adds a polygon mesh child using the given time sampling.
func (x *OXform) AddPolyMesh(name string, sampling uint32) (*OPolyMesh, error) {
	idx, err := x.w.addObject(x.index, name, KindPolyMesh, sampling)
	if err != nil {
		return nil, err
	}
	m := &OPolyMesh{OObject: OObject{w: x.w, index: idx}, uvProp: -1}
	if m.posProp, err = x.w.addProperty(idx, PropPositions, PODFloat32, 3, ScopeVertex, sampling); err != nil {
		return nil, err
	}
	if m.idxProp, err = x.w.addProperty(idx, PropFaceIndices, PODInt32, 1, ScopeConstant, sampling); err != nil {
		return nil, err
	}
	if m.cntProp, err = x.w.addProperty(idx, PropFaceCounts, PODInt32, 1, ScopeConstant, sampling); err != nil {
		return nil, err
	}
	return m, nil
}

// PolyMeshSample is one time sample of a polygon mesh.
type PolyMeshSample struct {
	Positions   []mgl32.Vec3
	FaceIndices []int32
	FaceCounts  []int32
	UVs         []mgl32.Vec2 // default UV slot, optional
}

// OPolyMesh is a polygon mesh being written.
type OPolyMesh struct {
	OObject
	posProp, idxProp, cntProp int
	uvProp                    int
}

// NumSamples returns the number of samples set so far.
func (m *OPolyMesh) NumSamples() int {
	return int(m.w.table.objects[m.index].numSamples)
}

// Set appends s as the next sample.
func (m *OPolyMesh) Set(s PolyMeshSample) error {
	index := uint32(m.NumSamples())
	if err := m.w.writeSample(m.posProp, index, s.Positions); err != nil {
		return err
	}
	if err := m.w.writeSample(m.idxProp, index, s.FaceIndices); err != nil {
		return err
	}
	if err := m.w.writeSample(m.cntProp, index, s.FaceCounts); err != nil {
		return err
	}
	if s.UVs != nil {
		if m.uvProp < 0 {
			prop, err := m.w.addProperty(m.index, PropUV, PODFloat32, 2, ScopeVertex, m.w.table.objects[m.index].sampling)
			if err != nil {
				return err
			}
			m.uvProp = prop
		}
		if err := m.w.writeSample(m.uvProp, index, s.UVs); err != nil {
			return err
		}
	}
	m.w.table.objects[m.index].numSamples++
	return nil
}

// AddGeomParam attaches an arbitrary geometry parameter to the mesh.
func (m *OPolyMesh) AddGeomParam(name string, pod POD, extent uint8, scope Scope, sampling uint32) (*OGeomParam, error) {
	if pod.Size() == 0 || extent == 0 {
		return nil, fmt.Errorf("%w: %s x%d", ErrTypeMismatch, pod, extent)
	}
	prop, err := m.w.addProperty(m.index, ArbGeomPrefix+name, pod, extent, scope, sampling)
	if err != nil {
		return nil, err
	}
	return &OGeomParam{mesh: m, prop: prop, name: name}, nil
}

// OGeomParam is a geometry parameter being written.
type OGeomParam struct {
	mesh *OPolyMesh
	prop int
	name string
}

// Name returns the parameter name without the arbGeomParams prefix.
func (g *OGeomParam) Name() string {
	return g.name
}

// NumSamples returns the number of samples set so far.
func (g *OGeomParam) NumSamples() int {
	return len(g.mesh.w.table.props[g.prop].samples)
}

// Set writes values as the parameter's sample for the mesh's most recent
// sample. Frames where Set is not called have no sample.
func (g *OGeomParam) Set(values any) error {
	n := g.mesh.NumSamples()
	if n == 0 {
		return fmt.Errorf("%w: mesh has no sample to attach %s to", ErrNoSample, g.name)
	}
	return g.mesh.w.writeSample(g.prop, uint32(n-1), values)
}

// describeValues returns the scalar type and scalar count of a value slice.
func describeValues(values any) (POD, int, error) {
	switch v := values.(type) {
	case []uint8:
		return PODUint8, len(v), nil
	case [][4]uint8:
		return PODUint8, 4 * len(v), nil
	case []int8:
		return PODInt8, len(v), nil
	case []uint16:
		return PODUint16, len(v), nil
	case []int16:
		return PODInt16, len(v), nil
	case []int32:
		return PODInt32, len(v), nil
	case []uint32:
		return PODUint32, len(v), nil
	case []float32:
		return PODFloat32, len(v), nil
	case []mgl32.Vec2:
		return PODFloat32, 2 * len(v), nil
	case []mgl32.Vec3:
		return PODFloat32, 3 * len(v), nil
	case []mgl32.Vec4:
		return PODFloat32, 4 * len(v), nil
	case []float64:
		return PODFloat64, len(v), nil
	default:
		return PODUnknown, 0, fmt.Errorf("%w: unsupported value type %T", ErrTypeMismatch, values)
	}
}
