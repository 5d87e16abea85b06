package pipeline

import (
	"errors"
	"fmt"
)

// Pipeline errors. Concrete failures wrap one of these and are matched with
// errors.Is.
var (
	ErrSourceParse       = errors.New("source frame parse failed")
	ErrContainerWrite    = errors.New("container write failed")
	ErrContainerRead     = errors.New("container read failed")
	ErrSchemaConsistency = errors.New("frame does not match the established schema")
	ErrMissingFrames     = errors.New("frames failed to convert")
	ErrNoInputs          = errors.New("no input frames")
)

// Channel names an optional vertex channel.
type Channel string

const (
	ChannelColor Channel = "color"
	ChannelUV    Channel = "uv"
)

// MissingChannelWarning reports a requested channel that the first frame
// does not carry. The channel is disabled for the whole batch.
type MissingChannelWarning struct {
	Channel Channel
	Source  string
}

func (w MissingChannelWarning) String() string {
	return fmt.Sprintf("%s requested but %s has no %s data, disabled for all frames", w.Channel, w.Source, w.Channel)
}

// FrameError is a failure of one frame in the parallel phase.
type FrameError struct {
	Index int
	Path  string
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d (%s): %v", e.Index, e.Path, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}
