package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/meshseq/internal/logger"
	"github.com/Faultbox/meshseq/pkg/archive"
	"github.com/Faultbox/meshseq/pkg/ply"
)

// IntermediateName returns the file name of frame index's intermediate
// archive. Indices are zero padded so lexical and frame order agree.
func IntermediateName(index int) string {
	return fmt.Sprintf("TempFile_%06d%s", index, archive.Ext)
}

// FrameResult is the outcome of converting one frame.
type FrameResult struct {
	Index  int
	Source string
	Path   string // intermediate archive, empty on failure
	Err    error
}

// BatchResult holds every frame outcome in frame order.
type BatchResult struct {
	Frames   []FrameResult
	Options  Options // effective options after the channel probe
	Warnings []MissingChannelWarning
}

// Paths returns the intermediates that were written, in frame order.
func (r *BatchResult) Paths() []string {
	var out []string
	for _, f := range r.Frames {
		if f.Err == nil {
			out = append(out, f.Path)
		}
	}
	return out
}

// Failed returns the indices of frames that failed.
func (r *BatchResult) Failed() []int {
	var out []int
	for _, f := range r.Frames {
		if f.Err != nil {
			out = append(out, f.Index)
		}
	}
	return out
}

// Err combines the per-frame errors, or returns nil if every frame converted.
func (r *BatchResult) Err() error {
	var err error
	for _, f := range r.Frames {
		if f.Err != nil {
			err = multierr.Append(err, f.Err)
		}
	}
	return err
}

type frameTask struct {
	index int
	path  string
}

// ConvertBatch converts each input PLY frame into an intermediate archive in
// dir using a bounded pool of workers. A frame failure does not stop the
// other frames; all results are available once every worker has finished.
// The returned error reports setup failures only.
func ConvertBatch(inputs []string, dir string, opts Options) (*BatchResult, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}
	log := logger.Named("batch")

	effective, warnings, err := probeChannels(inputs[0], opts)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		log.Warn(w.String())
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrContainerWrite, dir, err)
	}

	workers := effective.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	log.Info("converting frames",
		zap.Int("frames", len(inputs)),
		zap.Int("workers", workers),
		zap.Bool("color", effective.IncludeColor),
		zap.Bool("uv", effective.IncludeUV))

	result := &BatchResult{
		Frames:   make([]FrameResult, len(inputs)),
		Options:  effective,
		Warnings: warnings,
	}

	tasks := make(chan frameTask, len(inputs))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				// each slot is written by exactly one worker
				result.Frames[task.index] = convertFrame(task, dir, effective, log)
			}
		}()
	}

	for i, path := range inputs {
		tasks <- frameTask{index: i, path: path}
	}
	close(tasks)
	wg.Wait()

	if failed := result.Failed(); len(failed) > 0 {
		log.Warn("some frames failed", zap.Int("failed", len(failed)), zap.Ints("frames", failed))
	} else {
		log.Info("all frames converted", zap.Int("frames", len(inputs)))
	}
	return result, nil
}

func convertFrame(task frameTask, dir string, opts Options, log *zap.Logger) (res FrameResult) {
	res = FrameResult{Index: task.index, Source: task.path}

	// a panic while decoding one frame fails that frame only
	defer func() {
		if r := recover(); r != nil {
			res.Path = ""
			res.Err = &FrameError{Index: task.index, Path: task.path, Err: fmt.Errorf("%w: panic: %v", ErrSourceParse, r)}
			log.Error("frame conversion panicked", zap.Int("frame", task.index), zap.String("path", task.path), zap.Any("panic", r))
		}
	}()

	snap, err := ply.ReadFile(task.path, opts.plyOptions())
	if err != nil {
		res.Err = &FrameError{Index: task.index, Path: task.path, Err: fmt.Errorf("%w: %v", ErrSourceParse, err)}
		log.Error("reading frame failed", zap.Int("frame", task.index), zap.String("path", task.path), zap.Error(err))
		return res
	}

	out := filepath.Join(dir, IntermediateName(task.index))
	if err := EncodeFrame(snap, out, opts); err != nil {
		res.Err = &FrameError{Index: task.index, Path: task.path, Err: err}
		log.Error("writing frame failed", zap.Int("frame", task.index), zap.String("path", out), zap.Error(err))
		return res
	}

	res.Path = out
	log.Debug("frame converted",
		zap.Int("frame", task.index),
		zap.String("path", out),
		zap.Int("vertices", snap.VertexCount()),
		zap.Int("faces", snap.FaceCount()))
	return res
}

// probeChannels disables requested channels the first frame does not carry.
func probeChannels(first string, opts Options) (Options, []MissingChannelWarning, error) {
	if !opts.IncludeColor && !opts.IncludeUV {
		return opts, nil, nil
	}
	h, err := ply.Probe(first)
	if err != nil {
		return opts, nil, &FrameError{Index: 0, Path: first, Err: fmt.Errorf("%w: %v", ErrSourceParse, err)}
	}
	ch := h.Channels()

	var warnings []MissingChannelWarning
	if opts.IncludeColor && !ch.Color {
		opts.IncludeColor = false
		warnings = append(warnings, MissingChannelWarning{Channel: ChannelColor, Source: first})
	}
	if opts.IncludeUV && !ch.UV {
		opts.IncludeUV = false
		warnings = append(warnings, MissingChannelWarning{Channel: ChannelUV, Source: first})
	}
	return opts, warnings, nil
}
