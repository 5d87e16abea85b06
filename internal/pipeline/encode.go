package pipeline

import (
	"fmt"

	"github.com/Faultbox/meshseq/pkg/archive"
	"github.com/Faultbox/meshseq/pkg/mesh"
)

// EncodeFrame writes snap as a single-sample archive at path. Colors and UVs
// are written only when requested and present. On failure the partially
// written file is removed.
func EncodeFrame(snap *mesh.Snapshot, path string, opts Options) (err error) {
	w, err := archive.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrContainerWrite, err)
	}
	defer func() {
		if err != nil {
			w.Abort()
			err = fmt.Errorf("%w: %s: %v", ErrContainerWrite, path, err)
		}
	}()

	ts, err := w.AddTimeSampling(archive.Uniform(FPS))
	if err != nil {
		return err
	}
	xform, err := w.Top().AddXform(XformName, ts)
	if err != nil {
		return err
	}
	m, err := xform.AddPolyMesh(FrameMeshName, ts)
	if err != nil {
		return err
	}

	if err := m.Set(archive.PolyMeshSample{
		Positions:   snap.Positions,
		FaceIndices: snap.FaceIndices,
		FaceCounts:  snap.FaceCounts,
	}); err != nil {
		return err
	}

	if opts.IncludeColor && snap.HasColors() {
		enc := opts.ColorEncoding
		if enc == mesh.ColorAbsent {
			enc = snap.Colors.Encoding()
		}
		param, err := m.AddGeomParam(ColorParam, colorPOD(enc), 4, archive.ScopeVertex, ts)
		if err != nil {
			return err
		}
		if err := setColors(param, snap.Colors.Convert(enc)); err != nil {
			return err
		}
	}

	if opts.IncludeUV && snap.HasUVs() {
		param, err := m.AddGeomParam(UVParam, archive.PODFloat32, 2, archive.ScopeVertex, ts)
		if err != nil {
			return err
		}
		if err := param.Set(snap.UVs); err != nil {
			return err
		}
	}

	return w.Close()
}

// setColors writes c in its own encoding as the parameter's latest sample.
func setColors(param *archive.OGeomParam, c mesh.ColorChannel) error {
	switch c.Encoding() {
	case mesh.ColorUint8:
		src := c.Bytes()
		flat := make([]uint8, 0, 4*len(src))
		for _, b := range src {
			flat = append(flat, b[:]...)
		}
		return param.Set(flat)
	case mesh.ColorFloat32:
		return param.Set(c.Floats())
	}
	return fmt.Errorf("no color data to write")
}
