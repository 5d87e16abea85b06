// Package mesh holds the in-memory geometry of one captured simulation frame.
package mesh

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Position is a vertex position.
type Position = mgl32.Vec3

// UV is a texture coordinate.
type UV = mgl32.Vec2

// Snapshot validation errors.
var (
	ErrNoPositions       = errors.New("snapshot has no positions")
	ErrFaceCountMismatch = errors.New("face counts do not add up to face indices")
	ErrIndexOutOfRange   = errors.New("face index out of range")
	ErrColorCount        = errors.New("color count differs from vertex count")
	ErrUVCount           = errors.New("uv count differs from vertex count")
)

// Snapshot is the geometry of one frame. FaceIndices are stored per face in
// reverse of the source order. A Snapshot is not modified after construction.
type Snapshot struct {
	Positions   []Position
	FaceCounts  []int32
	FaceIndices []int32
	Colors      ColorChannel
	UVs         []UV // nil when the frame carries no texture coordinates
}

// VertexCount returns the number of vertices.
func (s *Snapshot) VertexCount() int {
	return len(s.Positions)
}

// FaceCount returns the number of faces.
func (s *Snapshot) FaceCount() int {
	return len(s.FaceCounts)
}

// HasColors reports whether the snapshot carries vertex colors.
func (s *Snapshot) HasColors() bool {
	return !s.Colors.IsAbsent()
}

// HasUVs reports whether the snapshot carries texture coordinates.
func (s *Snapshot) HasUVs() bool {
	return s.UVs != nil
}

// Validate checks channel lengths, face counts and index ranges.
func (s *Snapshot) Validate() error {
	if len(s.Positions) == 0 {
		return ErrNoPositions
	}

	var total int
	for i, c := range s.FaceCounts {
		if c < 0 {
			return fmt.Errorf("%w: face %d has negative count %d", ErrFaceCountMismatch, i, c)
		}
		total += int(c)
	}
	if total != len(s.FaceIndices) {
		return fmt.Errorf("%w: sum %d, indices %d", ErrFaceCountMismatch, total, len(s.FaceIndices))
	}

	n := int32(len(s.Positions))
	for i, idx := range s.FaceIndices {
		if idx < 0 || idx >= n {
			return fmt.Errorf("%w: index %d at %d (vertices %d)", ErrIndexOutOfRange, idx, i, n)
		}
	}

	if !s.Colors.IsAbsent() && s.Colors.Len() != len(s.Positions) {
		return fmt.Errorf("%w: %d colors, %d vertices", ErrColorCount, s.Colors.Len(), len(s.Positions))
	}
	if s.UVs != nil && len(s.UVs) != len(s.Positions) {
		return fmt.Errorf("%w: %d uvs, %d vertices", ErrUVCount, len(s.UVs), len(s.Positions))
	}
	return nil
}

// Bounds returns the axis-aligned bounding box of the positions.
func (s *Snapshot) Bounds() (min, max Position) {
	if len(s.Positions) == 0 {
		return Position{}, Position{}
	}
	inf := float32(math.Inf(1))
	min = Position{inf, inf, inf}
	max = Position{-inf, -inf, -inf}
	for _, p := range s.Positions {
		for k := 0; k < 3; k++ {
			if p[k] < min[k] {
				min[k] = p[k]
			}
			if p[k] > max[k] {
				max[k] = p[k]
			}
		}
	}
	return min, max
}

// AppendReversed appends face to dst with its vertex order reversed.
// The target renderer treats the reversed order as outward facing.
func AppendReversed(dst []int32, face []int32) []int32 {
	for i := len(face) - 1; i >= 0; i-- {
		dst = append(dst, face[i])
	}
	return dst
}

// Faces splits the flattened indices back into per-face slices.
// The returned slices alias FaceIndices.
func (s *Snapshot) Faces() [][]int32 {
	faces := make([][]int32, 0, len(s.FaceCounts))
	off := 0
	for _, c := range s.FaceCounts {
		end := off + int(c)
		if end > len(s.FaceIndices) {
			break
		}
		faces = append(faces, s.FaceIndices[off:end:end])
		off = end
	}
	return faces
}

// Frame is a snapshot together with where it came from.
type Frame struct {
	Index  int
	Source string
	Snapshot
}
