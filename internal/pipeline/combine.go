package pipeline

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/Faultbox/meshseq/internal/logger"
	"github.com/Faultbox/meshseq/pkg/archive"
	"github.com/Faultbox/meshseq/pkg/mesh"
)

// partialSuffix marks an output archive that is still being written.
const partialSuffix = ".partial"

// ChannelState tracks one optional channel of the output mesh. A channel is
// instantiated by the first frame that carries it and stays instantiated.
type ChannelState struct {
	param    *archive.OGeomParam
	encoding mesh.ColorEncoding // color channel only
	from     int
}

// Instantiated reports whether the channel's parameter exists.
func (c *ChannelState) Instantiated() bool {
	return c.param != nil
}

// SchemaState is the color and UV schema of the output mesh as established
// by the frames combined so far.
type SchemaState struct {
	Color ChannelState
	UV    ChannelState
}

// CombineResult summarizes a combined archive.
type CombineResult struct {
	Samples   int
	ColorFrom int // frame that instantiated the color parameter, or -1
	UVFrom    int // frame that instantiated the uv parameter, or -1
}

// Combine appends each input archive, in order, as the next time sample of
// one mesh in a new archive at output. The archive is written next to output
// and renamed into place only when every frame was combined; on any error
// nothing is left at output.
func Combine(inputs []string, output string, opts Options) (res CombineResult, err error) {
	res = CombineResult{ColorFrom: -1, UVFrom: -1}
	if len(inputs) == 0 {
		return res, ErrNoInputs
	}
	log := logger.Named("combine")

	partial := output + partialSuffix
	w, err := archive.Create(partial)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrContainerWrite, err)
	}
	defer func() {
		if err != nil {
			w.Abort()
		}
	}()

	ts, err := w.AddTimeSampling(archive.Uniform(FPS))
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrContainerWrite, err)
	}
	xform, err := w.Top().AddXform(XformName, ts)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrContainerWrite, err)
	}
	m, err := xform.AddPolyMesh(SequenceMeshName, ts)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrContainerWrite, err)
	}

	log.Info("combining frames", zap.Int("frames", len(inputs)), zap.String("output", output))

	var state SchemaState
	for i, path := range inputs {
		frame, err := ReadFrame(path)
		if err != nil {
			return res, err
		}
		frame.Index = i
		if err := appendFrame(m, ts, &state, frame, opts); err != nil {
			return res, err
		}
		log.Debug("frame appended", zap.Int("frame", i), zap.String("path", path))
	}

	w.SetMetadata("generator", "meshseq")
	w.SetMetadata("frames", strconv.Itoa(len(inputs)))
	if err := w.Close(); err != nil {
		return res, fmt.Errorf("%w: %v", ErrContainerWrite, err)
	}
	if err := os.Rename(partial, output); err != nil {
		os.Remove(partial)
		return res, fmt.Errorf("%w: %v", ErrContainerWrite, err)
	}

	res.Samples = len(inputs)
	if state.Color.Instantiated() {
		res.ColorFrom = state.Color.from
	}
	if state.UV.Instantiated() {
		res.UVFrom = state.UV.from
	}
	log.Info("archive written",
		zap.String("output", output),
		zap.Int("samples", res.Samples),
		zap.Int("color_from", res.ColorFrom),
		zap.Int("uv_from", res.UVFrom))
	return res, nil
}

// appendFrame writes frame as the mesh's next sample, instantiating the
// optional parameters the first time a frame carries them.
func appendFrame(m *archive.OPolyMesh, ts uint32, state *SchemaState, frame *mesh.Frame, opts Options) error {
	if err := m.Set(archive.PolyMeshSample{
		Positions:   frame.Positions,
		FaceIndices: frame.FaceIndices,
		FaceCounts:  frame.FaceCounts,
	}); err != nil {
		return fmt.Errorf("%w: frame %d: %v", ErrContainerWrite, frame.Index, err)
	}

	if opts.IncludeColor && frame.HasColors() {
		enc := frame.Colors.Encoding()
		if !state.Color.Instantiated() {
			param, err := m.AddGeomParam(ColorParam, colorPOD(enc), 4, archive.ScopeVertex, ts)
			if err != nil {
				return fmt.Errorf("%w: frame %d: %v", ErrContainerWrite, frame.Index, err)
			}
			state.Color = ChannelState{param: param, encoding: enc, from: frame.Index}
		} else if enc != state.Color.encoding {
			return fmt.Errorf("%w: frame %d (%s) has %s colors, archive has %s",
				ErrSchemaConsistency, frame.Index, frame.Source, enc, state.Color.encoding)
		}
		if err := setColors(state.Color.param, frame.Colors); err != nil {
			return fmt.Errorf("%w: frame %d: %v", ErrContainerWrite, frame.Index, err)
		}
	}

	if opts.IncludeUV && frame.HasUVs() {
		if !state.UV.Instantiated() {
			param, err := m.AddGeomParam(UVParam, archive.PODFloat32, 2, archive.ScopeVertex, ts)
			if err != nil {
				return fmt.Errorf("%w: frame %d: %v", ErrContainerWrite, frame.Index, err)
			}
			state.UV = ChannelState{param: param, from: frame.Index}
		}
		if err := state.UV.param.Set(frame.UVs); err != nil {
			return fmt.Errorf("%w: frame %d: %v", ErrContainerWrite, frame.Index, err)
		}
	}
	return nil
}
