// Package pipeline converts a sequence of PLY frames into one animated
// scene archive: frames are encoded in parallel into single-sample
// intermediates, then combined in frame order.
package pipeline

import (
	"github.com/Faultbox/meshseq/internal/config"
	"github.com/Faultbox/meshseq/pkg/archive"
	"github.com/Faultbox/meshseq/pkg/mesh"
	"github.com/Faultbox/meshseq/pkg/ply"
)

// Object and parameter names written into every archive.
const (
	XformName        = "cube1"
	FrameMeshName    = "meshShape1"
	SequenceMeshName = "meshShape"
	ColorParam       = "rgba"
	UVParam          = "uvs"
	FPS              = 30
)

// Options is the per-run conversion setup. It is built once and passed by
// value, so workers never share mutable settings.
type Options struct {
	IncludeColor  bool
	IncludeUV     bool
	ColorEncoding mesh.ColorEncoding
	Workers       int
	SkipMissing   bool
	KeepTemp      bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		ColorEncoding: mesh.ColorFloat32,
		Workers:       10,
	}
}

// OptionsFromConfig derives run options from a validated config.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	enc, err := mesh.ParseColorEncoding(cfg.Processing.ColorEncoding)
	if err != nil {
		return Options{}, err
	}
	return Options{
		IncludeColor:  cfg.Processing.Color,
		IncludeUV:     cfg.Processing.Texture,
		ColorEncoding: enc,
		Workers:       cfg.Processing.Workers,
		SkipMissing:   cfg.Frames.SkipMissing,
		KeepTemp:      cfg.Frames.KeepTemp,
	}, nil
}

func (o Options) plyOptions() ply.Options {
	return ply.Options{Color: o.IncludeColor, UV: o.IncludeUV, ColorEncoding: o.ColorEncoding}
}

func colorPOD(enc mesh.ColorEncoding) archive.POD {
	if enc == mesh.ColorUint8 {
		return archive.PODUint8
	}
	return archive.PODFloat32
}
