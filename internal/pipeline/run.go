package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/meshseq/internal/config"
	"github.com/Faultbox/meshseq/internal/logger"
	"github.com/Faultbox/meshseq/pkg/archive"
)

// finalPrefix starts the name of every archive Run produces.
const finalPrefix = "_FINAL_from_"

// RunResult describes a finished run.
type RunResult struct {
	Output  string
	Inputs  int
	Dropped []int // frames left out under the skip-missing policy
	Combine CombineResult
}

// OutputPath returns where Run writes the final archive.
func OutputPath(cfg *config.Config) string {
	name := fmt.Sprintf("%s%s_%s%s", finalPrefix, cfg.Input.Extension, cfg.OutputName(), archive.Ext)
	return filepath.Join(workDir(cfg), name)
}

// Discover lists the input frames of a run in lexical order. Archives
// produced by earlier runs are not inputs.
func Discover(cfg *config.Config) ([]string, error) {
	pattern := filepath.Join(workDir(cfg), cfg.Input.BaseName+"*."+cfg.Input.Extension)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", pattern, err)
	}
	var inputs []string
	for _, m := range matches {
		if strings.HasPrefix(filepath.Base(m), finalPrefix) {
			continue
		}
		inputs = append(inputs, m)
	}
	sort.Strings(inputs)
	return inputs, nil
}

// Run converts the configured frame sequence into one archive. PLY inputs
// are converted in parallel into a temporary directory, combined, and the
// directory is removed on success. Archive inputs are combined directly.
func Run(cfg *config.Config) (*RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.Named("run")

	inputs, err := Discover(cfg)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: nothing matches %s*.%s in %s", ErrNoInputs, cfg.Input.BaseName, cfg.Input.Extension, workDir(cfg))
	}

	res := &RunResult{Output: OutputPath(cfg), Inputs: len(inputs)}
	log.Info("starting conversion",
		zap.Int("frames", len(inputs)),
		zap.String("extension", cfg.Input.Extension),
		zap.String("output", res.Output))

	switch cfg.Input.Extension {
	case config.ExtArchive:
		res.Combine, err = Combine(inputs, res.Output, opts)
		if err != nil {
			return nil, err
		}

	case config.ExtPLY:
		tempDir := filepath.Join(workDir(cfg), cfg.Frames.TempDir)
		batch, err := ConvertBatch(inputs, tempDir, opts)
		if err != nil {
			return nil, err
		}

		if failed := batch.Failed(); len(failed) > 0 {
			if !opts.SkipMissing || len(failed) == len(inputs) {
				return nil, fmt.Errorf("%w: %d of %d: %v", ErrMissingFrames, len(failed), len(inputs), batch.Err())
			}
			for _, f := range batch.Frames {
				if f.Err != nil {
					log.Warn("dropping frame", zap.Int("frame", f.Index), zap.String("path", f.Source), zap.Error(f.Err))
				}
			}
			res.Dropped = failed
		}

		res.Combine, err = Combine(batch.Paths(), res.Output, batch.Options)
		if err != nil {
			return nil, err
		}

		if !opts.KeepTemp {
			if err := os.RemoveAll(tempDir); err != nil {
				log.Warn("removing intermediate directory failed", zap.String("dir", tempDir), zap.Error(err))
			}
		}

	default:
		return nil, fmt.Errorf("%w: unknown input extension %q", config.ErrInvalid, cfg.Input.Extension)
	}

	log.Info("conversion finished",
		zap.String("output", res.Output),
		zap.Int("samples", res.Combine.Samples),
		zap.Int("dropped", len(res.Dropped)))
	return res, nil
}

func workDir(cfg *config.Config) string {
	if cfg.Input.Dir == "" {
		return "."
	}
	return cfg.Input.Dir
}
