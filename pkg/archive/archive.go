// Package archive reads and writes MSQA scene archives: a hierarchy of
// transform and polygon mesh objects whose properties hold time samples.
//
// File layout (little-endian):
//
//	header  48 bytes (magic, version, archive id, table location)
//	samples zlib-compressed property samples, appended in write order
//	table   zlib-compressed protobuf-wire description of samplings,
//	        objects and properties with the location of every sample
package archive

import (
	"errors"
	"fmt"
	"math"
)

const (
	// Magic identifies an MSQA file.
	Magic = "MSQA"
	// Version is the format version written by this package.
	Version uint32 = 1
	// Ext is the conventional file extension.
	Ext = ".msa"

	headerSize = 48
)

// Archive errors.
var (
	ErrInvalidMagic       = errors.New("invalid archive magic: expected 'MSQA'")
	ErrUnsupportedVersion = errors.New("unsupported archive version")
	ErrTruncated          = errors.New("truncated archive data")
	ErrCorruptTable       = errors.New("corrupt archive table")
	ErrDuplicateName      = errors.New("duplicate child name")
	ErrSampleOrder        = errors.New("samples must be appended in time order")
	ErrNoSample           = errors.New("no such sample")
	ErrTypeMismatch       = errors.New("element type mismatch")
	ErrBadTimeSampling    = errors.New("invalid time sampling")
	ErrClosed             = errors.New("archive writer is closed")
	ErrWrongKind          = errors.New("object is not of the requested kind")
)

// Header is the fixed-size file header.
type Header struct {
	Magic           [4]byte
	Version         uint32
	ID              [16]byte
	TableOffset     uint64
	TableCompressed uint32
	TableSize       uint32
	Reserved        [8]byte
}

// POD is the plain-old-data element type of a property.
type POD uint8

const (
	PODUnknown POD = iota
	PODUint8
	PODInt8
	PODUint16
	PODInt16
	PODInt32
	PODUint32
	PODFloat32
	PODFloat64
)

// Size returns the byte size of one scalar.
func (p POD) Size() int {
	switch p {
	case PODUint8, PODInt8:
		return 1
	case PODUint16, PODInt16:
		return 2
	case PODInt32, PODUint32, PODFloat32:
		return 4
	case PODFloat64:
		return 8
	}
	return 0
}

// String returns a human-readable type name.
func (p POD) String() string {
	switch p {
	case PODUint8:
		return "uint8"
	case PODInt8:
		return "int8"
	case PODUint16:
		return "uint16"
	case PODInt16:
		return "int16"
	case PODInt32:
		return "int32"
	case PODUint32:
		return "uint32"
	case PODFloat32:
		return "float32"
	case PODFloat64:
		return "float64"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(p))
	}
}

// Scope is the rate at which a geometry parameter varies over a mesh.
type Scope uint8

const (
	ScopeConstant    Scope = iota // one value for the whole mesh
	ScopeUniform                  // one value per face
	ScopeVarying                  // one value per vertex, interpolated
	ScopeVertex                   // one value per vertex
	ScopeFaceVarying              // one value per face-vertex
)

// String returns a human-readable scope name.
func (s Scope) String() string {
	switch s {
	case ScopeConstant:
		return "constant"
	case ScopeUniform:
		return "uniform"
	case ScopeVarying:
		return "varying"
	case ScopeVertex:
		return "vertex"
	case ScopeFaceVarying:
		return "facevarying"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// Kind is the schema of an object.
type Kind uint8

const (
	KindTop Kind = iota
	KindXform
	KindPolyMesh
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindTop:
		return "Top"
	case KindXform:
		return "Xform"
	case KindPolyMesh:
		return "PolyMesh"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// Reserved property names used by the schemas.
const (
	PropPositions   = "P"
	PropFaceIndices = ".faceIndices"
	PropFaceCounts  = ".faceCounts"
	PropUV          = "uv"
	PropXform       = ".xform"

	// ArbGeomPrefix prefixes arbitrary geometry parameters attached to a mesh.
	ArbGeomPrefix = ".arbGeomParams/"
)

// TimeSampling maps sample indices to times. Each cycle lasts TimePerCycle
// and holds SamplesPerCycle samples at the offsets in Times.
type TimeSampling struct {
	SamplesPerCycle uint32
	TimePerCycle    float64
	Times           []float64
}

// Identity is the sampling at index 0 of every archive: one sample per
// unit time starting at zero.
var Identity = TimeSampling{SamplesPerCycle: 1, TimePerCycle: 1, Times: []float64{0}}

// Uniform returns a sampling of one sample per cycle at fps cycles per unit time.
func Uniform(fps float64) TimeSampling {
	return TimeSampling{SamplesPerCycle: 1, TimePerCycle: 1 / fps, Times: []float64{0}}
}

// Validate checks the sampling is usable.
func (ts TimeSampling) Validate() error {
	if ts.SamplesPerCycle == 0 || int(ts.SamplesPerCycle) != len(ts.Times) {
		return fmt.Errorf("%w: %d samples per cycle, %d times", ErrBadTimeSampling, ts.SamplesPerCycle, len(ts.Times))
	}
	if !(ts.TimePerCycle > 0) || math.IsInf(ts.TimePerCycle, 0) {
		return fmt.Errorf("%w: time per cycle %v", ErrBadTimeSampling, ts.TimePerCycle)
	}
	for i := 1; i < len(ts.Times); i++ {
		if ts.Times[i] <= ts.Times[i-1] {
			return fmt.Errorf("%w: times not increasing", ErrBadTimeSampling)
		}
	}
	return nil
}

// SampleTime returns the time of sample i.
func (ts TimeSampling) SampleTime(i int) float64 {
	spc := int(ts.SamplesPerCycle)
	if spc == 0 || len(ts.Times) < spc {
		return 0
	}
	return float64(i/spc)*ts.TimePerCycle + ts.Times[i%spc]
}

// FPS returns samples per unit time.
func (ts TimeSampling) FPS() float64 {
	return float64(ts.SamplesPerCycle) / ts.TimePerCycle
}

// Equal reports whether two samplings describe the same times.
func (ts TimeSampling) Equal(o TimeSampling) bool {
	if ts.SamplesPerCycle != o.SamplesPerCycle || ts.TimePerCycle != o.TimePerCycle || len(ts.Times) != len(o.Times) {
		return false
	}
	for i := range ts.Times {
		if ts.Times[i] != o.Times[i] {
			return false
		}
	}
	return true
}
