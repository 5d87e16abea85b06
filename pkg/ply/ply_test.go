package ply

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Faultbox/meshseq/pkg/mesh"
)

const asciiQuad = `ply
format ascii 1.0
comment generated for tests
element vertex 4
property float x
property float y
property float z
property uchar red
property uchar green
property uchar blue
property float u
property float v
element face 2
property list uchar int vertex_indices
end_header
0 0 0 255 0 0 0 0
1 0 0 0 255 0 1 0
1 1 0 0 0 255 1 1
0 1 0 10 20 30 0 1
3 0 1 2
3 0 2 3
`

// createBinaryPLY builds a binary PLY with one triangle and uchar colors.
func createBinaryPLY(order binary.ByteOrder) []byte {
	buf := new(bytes.Buffer)
	format := "binary_little_endian"
	if order == binary.BigEndian {
		format = "binary_big_endian"
	}
	buf.WriteString("ply\nformat " + format + " 1.0\n")
	buf.WriteString("element vertex 3\n")
	buf.WriteString("property float x\nproperty float y\nproperty float z\n")
	buf.WriteString("property uchar red\nproperty uchar green\nproperty uchar blue\n")
	buf.WriteString("element face 1\n")
	buf.WriteString("property list uchar uint vertex_indices\n")
	buf.WriteString("property uchar flags\n")
	buf.WriteString("end_header\n")

	verts := [][3]float32{{0, 0, 0}, {2, 0, 0}, {0, 3, 0}}
	for i, v := range verts {
		binary.Write(buf, order, v)
		buf.Write([]byte{uint8(i * 100), 0, 255})
	}
	buf.WriteByte(3)
	binary.Write(buf, order, []uint32{0, 1, 2})
	buf.WriteByte(7)
	return buf.Bytes()
}

func TestReadHeader(t *testing.T) {
	h, err := ReadHeader(bufio.NewReader(strings.NewReader(asciiQuad)))
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}

	if h.Format != FormatASCII {
		t.Errorf("expected ascii format, got %s", h.Format)
	}
	if h.Version != "1.0" {
		t.Errorf("expected version 1.0, got %s", h.Version)
	}
	if len(h.Comments) != 1 || h.Comments[0] != "generated for tests" {
		t.Errorf("unexpected comments %v", h.Comments)
	}
	if len(h.Elements) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(h.Elements))
	}

	v := h.Element("vertex")
	if v == nil || v.Count != 4 || len(v.Properties) != 8 {
		t.Fatalf("unexpected vertex element %+v", v)
	}
	f := h.Element("face")
	if f == nil || !f.Properties[0].IsList || f.Properties[0].CountType != Uint8 || f.Properties[0].Type != Int32 {
		t.Errorf("unexpected face element %+v", f)
	}

	ch := h.Channels()
	if !ch.Color || !ch.UV {
		t.Errorf("expected color and uv channels, got %+v", ch)
	}
}

func TestReadHeader_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"bad magic", "plx\nformat ascii 1.0\nend_header\n", ErrInvalidMagic},
		{"empty", "", ErrTruncatedData},
		{"unterminated", "ply\nformat ascii 1.0\nelement vertex 1\n", ErrTruncatedData},
		{"unknown format", "ply\nformat binary_middle_endian 1.0\nend_header\n", ErrUnsupportedFormat},
		{"missing format", "ply\nelement vertex 1\nend_header\n", ErrInvalidHeader},
		{"property first", "ply\nformat ascii 1.0\nproperty float x\nend_header\n", ErrInvalidHeader},
		{"bad type", "ply\nformat ascii 1.0\nelement vertex 1\nproperty quad x\nend_header\n", ErrInvalidHeader},
		{"float list count", "ply\nformat ascii 1.0\nelement face 1\nproperty list float int vertex_indices\nend_header\n", ErrInvalidHeader},
		{"bad count", "ply\nformat ascii 1.0\nelement vertex -2\nend_header\n", ErrInvalidHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadHeader(bufio.NewReader(strings.NewReader(tt.input)))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDecode_ASCII(t *testing.T) {
	snap, err := Decode(strings.NewReader(asciiQuad), Options{Color: true, UV: true})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if snap.VertexCount() != 4 {
		t.Errorf("expected 4 vertices, got %d", snap.VertexCount())
	}
	if snap.Positions[2] != (mesh.Position{1, 1, 0}) {
		t.Errorf("unexpected position %v", snap.Positions[2])
	}

	wantCounts := []int32{3, 3}
	wantIndices := []int32{2, 1, 0, 3, 2, 0}
	for i, c := range wantCounts {
		if snap.FaceCounts[i] != c {
			t.Errorf("face %d: expected count %d, got %d", i, c, snap.FaceCounts[i])
		}
	}
	for i, idx := range wantIndices {
		if snap.FaceIndices[i] != idx {
			t.Errorf("index %d: expected %d, got %d (winding must be reversed)", i, idx, snap.FaceIndices[i])
		}
	}

	if snap.Colors.Encoding() != mesh.ColorFloat32 {
		t.Fatalf("expected float colors by default, got %s", snap.Colors.Encoding())
	}
	red := snap.Colors.Floats()[0]
	if red[0] != 1 || red[1] != 0 || red[2] != 0 || red[3] != 1 {
		t.Errorf("expected opaque red, got %v", red)
	}
	if snap.UVs[2] != (mesh.UV{1, 1}) {
		t.Errorf("unexpected uv %v", snap.UVs[2])
	}
}

func TestDecode_ChannelsDisabled(t *testing.T) {
	snap, err := Decode(strings.NewReader(asciiQuad), Options{})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if snap.HasColors() || snap.HasUVs() {
		t.Error("channels should be absent when not requested")
	}
}

func TestDecode_RequestedButMissing(t *testing.T) {
	input := "ply\nformat ascii 1.0\nelement vertex 3\nproperty float x\nproperty float y\nproperty float z\n" +
		"element face 1\nproperty list uchar int vertex_indices\nend_header\n" +
		"0 0 0\n1 0 0\n0 1 0\n3 0 1 2\n"

	snap, err := Decode(strings.NewReader(input), Options{Color: true, UV: true})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if snap.HasColors() || snap.HasUVs() {
		t.Error("missing channels should decode as absent")
	}
}

func TestDecode_Uint8Encoding(t *testing.T) {
	snap, err := Decode(strings.NewReader(asciiQuad), Options{Color: true, ColorEncoding: mesh.ColorUint8})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if snap.Colors.Encoding() != mesh.ColorUint8 {
		t.Fatalf("expected uint8 colors, got %s", snap.Colors.Encoding())
	}
	if got := snap.Colors.Bytes()[3]; got != (mesh.RGBA8{10, 20, 30, 255}) {
		t.Errorf("unexpected color %v", got)
	}
}

func TestDecode_Binary(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		t.Run(order.String(), func(t *testing.T) {
			snap, err := Decode(bytes.NewReader(createBinaryPLY(order)), Options{Color: true})
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if snap.Positions[1] != (mesh.Position{2, 0, 0}) || snap.Positions[2] != (mesh.Position{0, 3, 0}) {
				t.Errorf("unexpected positions %v", snap.Positions)
			}
			if len(snap.FaceIndices) != 3 || snap.FaceIndices[0] != 2 || snap.FaceIndices[2] != 0 {
				t.Errorf("unexpected indices %v", snap.FaceIndices)
			}
			if got := snap.Colors.Bytes()[2]; got != (mesh.RGBA8{200, 0, 255, 255}) {
				t.Errorf("unexpected color %v", got)
			}
		})
	}
}

func TestDecode_Truncated(t *testing.T) {
	data := createBinaryPLY(binary.LittleEndian)
	_, err := Decode(bytes.NewReader(data[:len(data)-6]), Options{})
	if !errors.Is(err, ErrTruncatedData) {
		t.Errorf("expected truncated error, got %v", err)
	}
}

func TestDecode_HugeElementCount(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"ascii vertices", "ply\nformat ascii 1.0\nelement vertex 9000000000000000000\nproperty float x\nproperty float y\nproperty float z\nelement face 0\nproperty list uchar int vertex_indices\nend_header\n0 0 0\n"},
		{"binary vertices", "ply\nformat binary_little_endian 1.0\nelement vertex 9000000000000000000\nproperty float x\nproperty float y\nproperty float z\nelement face 0\nproperty list uchar int vertex_indices\nend_header\n"},
		{"ascii faces", "ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nproperty float y\nproperty float z\nelement face 3000000000000000000\nproperty list uchar int vertex_indices\nend_header\n0 0 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.data), Options{})
			if !errors.Is(err, ErrTruncatedData) {
				t.Errorf("expected truncated error, got %v", err)
			}
		})
	}
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestDecode_ReadError(t *testing.T) {
	data := createBinaryPLY(binary.LittleEndian)
	header := data[:bytes.Index(data, []byte("end_header\n"))+len("end_header\n")]
	diskErr := errors.New("device not ready")

	_, err := Decode(io.MultiReader(bytes.NewReader(header), failingReader{diskErr}), Options{})
	if !errors.Is(err, diskErr) {
		t.Errorf("expected the read error to be kept, got %v", err)
	}
	if errors.Is(err, ErrTruncatedData) {
		t.Errorf("read error reported as truncation: %v", err)
	}
}

func TestDecode_MissingElements(t *testing.T) {
	noFace := "ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nproperty float y\nproperty float z\nend_header\n0 0 0\n"
	if _, err := Decode(strings.NewReader(noFace), Options{}); !errors.Is(err, ErrMissingElement) {
		t.Errorf("expected missing element, got %v", err)
	}

	noZ := "ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nproperty float y\nelement face 0\nproperty list uchar int vertex_indices\nend_header\n0 0\n"
	if _, err := Decode(strings.NewReader(noZ), Options{}); !errors.Is(err, ErrMissingProperty) {
		t.Errorf("expected missing property, got %v", err)
	}
}

func TestDecode_IndexOutOfRange(t *testing.T) {
	input := "ply\nformat ascii 1.0\nelement vertex 3\nproperty float x\nproperty float y\nproperty float z\n" +
		"element face 1\nproperty list uchar int vertex_indices\nend_header\n" +
		"0 0 0\n1 0 0\n0 1 0\n3 0 1 5\n"
	if _, err := Decode(strings.NewReader(input), Options{}); !errors.Is(err, mesh.ErrIndexOutOfRange) {
		t.Errorf("expected index error, got %v", err)
	}
}

func TestDecode_SkipsUnknownElements(t *testing.T) {
	input := "ply\nformat ascii 1.0\n" +
		"element material 1\nproperty uchar ambient_red\nproperty list uchar float coeffs\n" +
		"element vertex 3\nproperty float x\nproperty float y\nproperty float z\nproperty float nx\n" +
		"element face 1\nproperty list uchar int vertex_index\nend_header\n" +
		"5 2 0.5 0.25\n" +
		"0 0 0 1\n1 0 0 1\n0 1 0 1\n3 0 1 2\n"

	snap, err := Decode(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if snap.VertexCount() != 3 || snap.FaceCount() != 1 {
		t.Errorf("unexpected geometry: %d vertices, %d faces", snap.VertexCount(), snap.FaceCount())
	}
}

func TestDecode_FloatColorsAndST(t *testing.T) {
	input := "ply\nformat ascii 1.0\nelement vertex 3\n" +
		"property float x\nproperty float y\nproperty float z\n" +
		"property float red\nproperty float green\nproperty float blue\n" +
		"property float s\nproperty float t\n" +
		"element face 1\nproperty list uchar int vertex_indices\nend_header\n" +
		"0 0 0 1 0.5 0 0.25 0.75\n1 0 0 0 0 0 1 0\n0 1 0 0 0 0 0 1\n3 0 1 2\n"

	snap, err := Decode(strings.NewReader(input), Options{Color: true, UV: true, ColorEncoding: mesh.ColorUint8})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := snap.Colors.Bytes()[0]; got != (mesh.RGBA8{255, 128, 0, 255}) {
		t.Errorf("unexpected color %v", got)
	}
	if snap.UVs[0] != (mesh.UV{0.25, 0.75}) {
		t.Errorf("unexpected uv %v", snap.UVs[0])
	}
}

func TestProbe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.ply")
	if err := os.WriteFile(path, []byte(asciiQuad), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	h, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if !h.Channels().Color {
		t.Error("expected color channel")
	}

	if _, err := Probe(filepath.Join(t.TempDir(), "missing.ply")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.ply")
	if err := os.WriteFile(path, createBinaryPLY(binary.LittleEndian), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	snap, err := ReadFile(path, Options{})
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if snap.VertexCount() != 3 {
		t.Errorf("expected 3 vertices, got %d", snap.VertexCount())
	}
}
