package ply

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/Faultbox/meshseq/pkg/mesh"
)

// Options selects which optional vertex channels are decoded.
type Options struct {
	Color         bool
	UV            bool
	ColorEncoding mesh.ColorEncoding
}

// Channels reports which optional vertex channels a file carries.
type Channels struct {
	Color bool
	UV    bool
}

var (
	colorNames = []string{"red", "green", "blue"}
	uvNames    = [][2]string{{"u", "v"}, {"s", "t"}, {"texture_u", "texture_v"}}
	faceNames  = []string{"vertex_indices", "vertex_index"}
)

// Channels returns the optional channels declared on the vertex element.
func (h *Header) Channels() Channels {
	v := h.Element("vertex")
	if v == nil {
		return Channels{}
	}
	_, _, hasUV := uvProperties(v)
	return Channels{
		Color: v.HasProperties(colorNames...),
		UV:    hasUV,
	}
}

func uvProperties(v *Element) (int, int, bool) {
	for _, names := range uvNames {
		u, w := v.PropertyIndex(names[0]), v.PropertyIndex(names[1])
		if u >= 0 && w >= 0 {
			return u, w, true
		}
	}
	return -1, -1, false
}

// Probe reads only the header of a PLY file.
func Probe(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return ReadHeader(bufio.NewReader(f))
}

// ReadFile decodes the PLY file at path.
func ReadFile(path string, opts Options) (*mesh.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return Decode(f, opts)
}

// vertex property roles
const (
	roleSkip = iota
	roleX
	roleY
	roleZ
	roleR
	roleG
	roleB
	roleU
	roleV
)

// Decode parses a PLY stream into a snapshot. Requested channels the file
// does not carry are left absent. Faces are stored with reversed winding.
func Decode(r io.Reader, opts Options) (*mesh.Snapshot, error) {
	br := bufio.NewReaderSize(r, 256*1024)
	h, err := ReadHeader(br)
	if err != nil {
		return nil, err
	}

	vertexEl := h.Element("vertex")
	if vertexEl == nil {
		return nil, fmt.Errorf("%w: vertex", ErrMissingElement)
	}
	if !vertexEl.HasProperties("x", "y", "z") {
		return nil, fmt.Errorf("%w: vertex x/y/z", ErrMissingProperty)
	}
	if h.Element("face") == nil {
		return nil, fmt.Errorf("%w: face", ErrMissingElement)
	}

	ch := h.Channels()
	wantColor := opts.Color && ch.Color
	wantUV := opts.UV && ch.UV
	enc := opts.ColorEncoding
	if enc == mesh.ColorAbsent {
		enc = mesh.ColorFloat32
	}

	vr := newValueReader(br, h.Format)
	snap := &mesh.Snapshot{}
	var rgb [][3]uint8

	for i := range h.Elements {
		el := &h.Elements[i]
		switch el.Name {
		case "vertex":
			rgb, err = decodeVertices(vr, el, snap, wantColor, wantUV)
		case "face":
			err = decodeFaces(vr, el, snap)
		default:
			err = skipElement(vr, el)
		}
		if err != nil {
			return nil, err
		}
	}

	if wantColor {
		snap.Colors = mesh.FromRGB8(rgb, enc)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

func decodeVertices(vr valueReader, el *Element, snap *mesh.Snapshot, wantColor, wantUV bool) ([][3]uint8, error) {
	roles := make([]int, len(el.Properties))
	roles[el.PropertyIndex("x")] = roleX
	roles[el.PropertyIndex("y")] = roleY
	roles[el.PropertyIndex("z")] = roleZ
	if wantColor {
		roles[el.PropertyIndex("red")] = roleR
		roles[el.PropertyIndex("green")] = roleG
		roles[el.PropertyIndex("blue")] = roleB
	}
	if wantUV {
		u, v, _ := uvProperties(el)
		roles[u] = roleU
		roles[v] = roleV
	}

	n := prealloc(el.Count)
	snap.Positions = make([]mesh.Position, 0, n)
	var rgb [][3]uint8
	if wantColor {
		rgb = make([][3]uint8, 0, n)
	}
	if wantUV {
		snap.UVs = make([]mesh.UV, 0, n)
	}

	var scratch []float64
	for i := 0; i < el.Count; i++ {
		snap.Positions = append(snap.Positions, mesh.Position{})
		if wantColor {
			rgb = append(rgb, [3]uint8{})
		}
		if wantUV {
			snap.UVs = append(snap.UVs, mesh.UV{})
		}
		for j, p := range el.Properties {
			if p.IsList {
				var err error
				if scratch, err = readList(vr, p, scratch); err != nil {
					return nil, fmt.Errorf("vertex %d: %w", i, err)
				}
				continue
			}
			v, err := vr.scalar(p.Type)
			if err != nil {
				return nil, fmt.Errorf("vertex %d.%s: %w", i, p.Name, err)
			}
			switch roles[j] {
			case roleX:
				snap.Positions[i][0] = float32(v)
			case roleY:
				snap.Positions[i][1] = float32(v)
			case roleZ:
				snap.Positions[i][2] = float32(v)
			case roleR:
				rgb[i][0] = colorByte(v, p.Type)
			case roleG:
				rgb[i][1] = colorByte(v, p.Type)
			case roleB:
				rgb[i][2] = colorByte(v, p.Type)
			case roleU:
				snap.UVs[i][0] = float32(v)
			case roleV:
				snap.UVs[i][1] = float32(v)
			}
		}
	}
	return rgb, nil
}

func decodeFaces(vr valueReader, el *Element, snap *mesh.Snapshot) error {
	listIdx := -1
	for _, name := range faceNames {
		if idx := el.PropertyIndex(name); idx >= 0 && el.Properties[idx].IsList {
			listIdx = idx
			break
		}
	}
	if listIdx < 0 {
		return fmt.Errorf("%w: face vertex_indices", ErrMissingProperty)
	}

	n := prealloc(el.Count)
	snap.FaceCounts = make([]int32, 0, n)
	snap.FaceIndices = make([]int32, 0, n*3)

	var scratch []float64
	face := make([]int32, 0, 8)
	for i := 0; i < el.Count; i++ {
		for j, p := range el.Properties {
			var err error
			if !p.IsList {
				_, err = vr.scalar(p.Type)
			} else {
				scratch, err = readList(vr, p, scratch)
			}
			if err != nil {
				return fmt.Errorf("face %d.%s: %w", i, p.Name, err)
			}
			if j != listIdx {
				continue
			}
			face = face[:0]
			for _, v := range scratch {
				face = append(face, int32(v))
			}
			snap.FaceCounts = append(snap.FaceCounts, int32(len(face)))
			snap.FaceIndices = mesh.AppendReversed(snap.FaceIndices, face)
		}
	}
	return nil
}

// maxPrealloc bounds how many elements are reserved from a header count.
// Larger elements grow as they are read, so a bogus count fails on
// truncated data instead of on allocation.
const maxPrealloc = 1 << 16

func prealloc(count int) int {
	return min(count, maxPrealloc)
}

// colorByte maps a color property to 0-255. Float channels are taken as
// normalized [0, 1] values.
func colorByte(v float64, t ScalarType) uint8 {
	if t.IsFloat() {
		v *= 255
	}
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
