package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Faultbox/meshseq/pkg/archive"
	"github.com/Faultbox/meshseq/pkg/mesh"
)

// plyFrame describes a source frame in PLY terms, faces in source order.
type plyFrame struct {
	positions [][3]float32
	faces     [][]int
	colors    [][3]uint8
	uvs       [][2]float32
}

// quadFrame is a unit quad split into two triangles, shifted along x by offset.
func quadFrame(offset float32) plyFrame {
	return plyFrame{
		positions: [][3]float32{
			{offset, 0, 0},
			{offset + 1, 0, 0},
			{offset + 1, 1, 0},
			{offset, 1, 0},
		},
		faces: [][]int{{0, 1, 2}, {0, 2, 3}},
	}
}

func (f plyFrame) withColors() plyFrame {
	f.colors = [][3]uint8{{255, 0, 0}, {0, 255, 0}, {0, 0, 255}, {51, 102, 153}}
	return f
}

func (f plyFrame) withUVs() plyFrame {
	f.uvs = [][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	return f
}

// writePLY writes f as an ASCII PLY file.
func writePLY(t *testing.T, path string, f plyFrame) {
	t.Helper()

	var b strings.Builder
	b.WriteString("ply\nformat ascii 1.0\n")
	fmt.Fprintf(&b, "element vertex %d\n", len(f.positions))
	b.WriteString("property float x\nproperty float y\nproperty float z\n")
	if f.colors != nil {
		b.WriteString("property uchar red\nproperty uchar green\nproperty uchar blue\n")
	}
	if f.uvs != nil {
		b.WriteString("property float u\nproperty float v\n")
	}
	fmt.Fprintf(&b, "element face %d\n", len(f.faces))
	b.WriteString("property list uchar int vertex_indices\nend_header\n")

	for i, p := range f.positions {
		fmt.Fprintf(&b, "%g %g %g", p[0], p[1], p[2])
		if f.colors != nil {
			c := f.colors[i]
			fmt.Fprintf(&b, " %d %d %d", c[0], c[1], c[2])
		}
		if f.uvs != nil {
			fmt.Fprintf(&b, " %g %g", f.uvs[i][0], f.uvs[i][1])
		}
		b.WriteString("\n")
	}
	for _, face := range f.faces {
		fmt.Fprintf(&b, "%d", len(face))
		for _, idx := range face {
			fmt.Fprintf(&b, " %d", idx)
		}
		b.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// writeSequence writes frames as <dir>/<base><index>.ply and returns the paths.
func writeSequence(t *testing.T, dir, base string, frames []plyFrame) []string {
	t.Helper()
	paths := make([]string, len(frames))
	for i, f := range frames {
		paths[i] = filepath.Join(dir, fmt.Sprintf("%s%04d.ply", base, i))
		writePLY(t, paths[i], f)
	}
	return paths
}

// snapshotOf builds the snapshot a decoder should produce for f.
func snapshotOf(f plyFrame, enc mesh.ColorEncoding) *mesh.Snapshot {
	s := &mesh.Snapshot{}
	for _, p := range f.positions {
		s.Positions = append(s.Positions, mesh.Position{p[0], p[1], p[2]})
	}
	for _, face := range f.faces {
		s.FaceCounts = append(s.FaceCounts, int32(len(face)))
		src := make([]int32, len(face))
		for i, idx := range face {
			src[i] = int32(idx)
		}
		s.FaceIndices = mesh.AppendReversed(s.FaceIndices, src)
	}
	if f.colors != nil {
		s.Colors = mesh.FromRGB8(f.colors, enc)
	}
	for _, uv := range f.uvs {
		s.UVs = append(s.UVs, mesh.UV{uv[0], uv[1]})
	}
	return s
}

// openMesh opens an archive and returns its mesh.
func openMesh(t *testing.T, path string) (*archive.Archive, *archive.IPolyMesh) {
	t.Helper()
	a, err := archive.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	t.Cleanup(func() { a.Close() })

	xform := a.Top().Child(0)
	if xform == nil || xform.Name() != XformName {
		t.Fatalf("expected xform %s under top", XformName)
	}
	m, err := xform.Child(0).PolyMesh()
	if err != nil {
		t.Fatalf("expected mesh under %s: %v", XformName, err)
	}
	return a, m
}

func equalInt32s(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func assertSnapshotsEqual(t *testing.T, got, want *mesh.Snapshot) {
	t.Helper()
	if len(got.Positions) != len(want.Positions) {
		t.Fatalf("expected %d positions, got %d", len(want.Positions), len(got.Positions))
	}
	for i := range want.Positions {
		if got.Positions[i] != want.Positions[i] {
			t.Errorf("position %d: expected %v, got %v", i, want.Positions[i], got.Positions[i])
		}
	}
	if !equalInt32s(got.FaceCounts, want.FaceCounts) {
		t.Errorf("face counts: expected %v, got %v", want.FaceCounts, got.FaceCounts)
	}
	if !equalInt32s(got.FaceIndices, want.FaceIndices) {
		t.Errorf("face indices: expected %v, got %v", want.FaceIndices, got.FaceIndices)
	}
	if got.Colors.Encoding() != want.Colors.Encoding() {
		t.Fatalf("color encoding: expected %s, got %s", want.Colors.Encoding(), got.Colors.Encoding())
	}
	wantF, gotF := want.Colors.Floats(), got.Colors.Floats()
	for i := range wantF {
		if gotF[i] != wantF[i] {
			t.Errorf("color %d: expected %v, got %v", i, wantF[i], gotF[i])
		}
	}
	if len(got.UVs) != len(want.UVs) {
		t.Fatalf("expected %d uvs, got %d", len(want.UVs), len(got.UVs))
	}
	for i := range want.UVs {
		if got.UVs[i] != want.UVs[i] {
			t.Errorf("uv %d: expected %v, got %v", i, want.UVs[i], got.UVs[i])
		}
	}
}

func assertNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected %s to not exist, stat error: %v", path, err)
	}
}
