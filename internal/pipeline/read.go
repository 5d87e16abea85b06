package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/meshseq/internal/logger"
	"github.com/Faultbox/meshseq/pkg/archive"
	"github.com/Faultbox/meshseq/pkg/mesh"
)

// ReadFrame reads the first sample of the first mesh in a single-frame
// archive. The mesh is the first child of the first child of the top object.
// A color parameter of an unexpected type is dropped with a warning. UVs
// come from the "uvs" parameter, else from the mesh's default UV slot.
func ReadFrame(path string) (*mesh.Frame, error) {
	a, err := archive.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrContainerRead, path, err)
	}
	defer a.Close()

	xform := a.Top().Child(0)
	if xform == nil {
		return nil, fmt.Errorf("%w: %s: archive has no objects", ErrContainerRead, path)
	}
	obj := xform.Child(0)
	if obj == nil {
		return nil, fmt.Errorf("%w: %s: %s has no children", ErrContainerRead, path, xform.FullName())
	}
	m, err := obj.PolyMesh()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrContainerRead, path, err)
	}
	if m.NumSamples() == 0 {
		return nil, fmt.Errorf("%w: %s: mesh has no samples", ErrContainerRead, path)
	}

	t := int(m.Object().Property(archive.PropPositions).SampleIndex(0))
	sample, err := m.Sample(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrContainerRead, path, err)
	}

	frame := &mesh.Frame{
		Source: path,
		Snapshot: mesh.Snapshot{
			Positions:   sample.Positions,
			FaceCounts:  sample.FaceCounts,
			FaceIndices: sample.FaceIndices,
			UVs:         sample.UVs,
		},
	}

	if p := m.GeomParam(ColorParam); p != nil {
		colors, err := readColors(p, uint32(t))
		if err != nil {
			logger.Named("read").Warn("ignoring color parameter", zap.String("path", path), zap.Error(err))
		} else {
			frame.Colors = colors
		}
	}

	if p := m.GeomParam(UVParam); p != nil {
		if i, ok := p.Lookup(uint32(t)); ok {
			uvs, err := p.Vec2s(i)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrContainerRead, path, err)
			}
			frame.UVs = uvs
		}
	}

	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrContainerRead, path, err)
	}
	return frame, nil
}

// readColors decodes a color parameter stored as 4 x uint8 or 4 x float32.
func readColors(p *archive.Property, t uint32) (mesh.ColorChannel, error) {
	i, ok := p.Lookup(t)
	if !ok {
		return mesh.ColorChannel{}, nil
	}
	h := p.Header()
	if h.Extent != 4 {
		return mesh.ColorChannel{}, fmt.Errorf("%w: extent %d", archive.ErrTypeMismatch, h.Extent)
	}
	switch h.POD {
	case archive.PODUint8:
		raw, err := p.Bytes4(i)
		if err != nil {
			return mesh.ColorChannel{}, err
		}
		colors := make([]mesh.RGBA8, len(raw))
		for j, c := range raw {
			colors[j] = c
		}
		return mesh.Uint8Colors(colors), nil
	case archive.PODFloat32:
		f, err := p.Vec4s(i)
		if err != nil {
			return mesh.ColorChannel{}, err
		}
		return mesh.FloatColors(f), nil
	default:
		return mesh.ColorChannel{}, fmt.Errorf("%w: element type %s", archive.ErrTypeMismatch, h.POD)
	}
}
