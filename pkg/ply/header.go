// Package ply reads Stanford PLY polygon files into mesh snapshots.
package ply

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// PLY format errors.
var (
	ErrInvalidMagic      = errors.New("invalid PLY magic: expected 'ply'")
	ErrUnsupportedFormat = errors.New("unsupported PLY format")
	ErrInvalidHeader     = errors.New("invalid PLY header")
	ErrTruncatedData     = errors.New("truncated PLY data")
	ErrMissingElement    = errors.New("missing PLY element")
	ErrMissingProperty   = errors.New("missing PLY property")
)

// Format is the body encoding declared in the header.
type Format int

const (
	FormatASCII Format = iota
	FormatBinaryLittleEndian
	FormatBinaryBigEndian
)

// String returns the header keyword for the format.
func (f Format) String() string {
	switch f {
	case FormatASCII:
		return "ascii"
	case FormatBinaryLittleEndian:
		return "binary_little_endian"
	case FormatBinaryBigEndian:
		return "binary_big_endian"
	default:
		return fmt.Sprintf("Unknown(%d)", int(f))
	}
}

// ScalarType is a PLY property data type.
type ScalarType int

const (
	Int8 ScalarType = iota + 1
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Float32
	Float64
)

var scalarNames = map[string]ScalarType{
	"char": Int8, "int8": Int8,
	"uchar": Uint8, "uint8": Uint8,
	"short": Int16, "int16": Int16,
	"ushort": Uint16, "uint16": Uint16,
	"int": Int32, "int32": Int32,
	"uint": Uint32, "uint32": Uint32,
	"float": Float32, "float32": Float32,
	"double": Float64, "float64": Float64,
}

// Size returns the binary size in bytes.
func (t ScalarType) Size() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

// IsFloat reports whether the type is a floating point type.
func (t ScalarType) IsFloat() bool {
	return t == Float32 || t == Float64
}

// String returns the canonical PLY type name.
func (t ScalarType) String() string {
	switch t {
	case Int8:
		return "char"
	case Uint8:
		return "uchar"
	case Int16:
		return "short"
	case Uint16:
		return "ushort"
	case Int32:
		return "int"
	case Uint32:
		return "uint"
	case Float32:
		return "float"
	case Float64:
		return "double"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// Property describes one property of an element.
type Property struct {
	Name      string
	Type      ScalarType // value type (element type for lists)
	IsList    bool
	CountType ScalarType // list length type, only for lists
}

// Element describes one element block such as "vertex" or "face".
type Element struct {
	Name       string
	Count      int
	Properties []Property
}

// PropertyIndex returns the index of the named property or -1.
func (e *Element) PropertyIndex(name string) int {
	for i, p := range e.Properties {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// HasProperties reports whether every named property exists.
func (e *Element) HasProperties(names ...string) bool {
	for _, n := range names {
		if e.PropertyIndex(n) < 0 {
			return false
		}
	}
	return true
}

// Header is a parsed PLY header.
type Header struct {
	Format   Format
	Version  string
	Comments []string
	ObjInfo  []string
	Elements []Element
}

// Element returns the named element, or nil.
func (h *Header) Element(name string) *Element {
	for i := range h.Elements {
		if h.Elements[i].Name == name {
			return &h.Elements[i]
		}
	}
	return nil
}

// ReadHeader parses the header and leaves r positioned at the first body byte.
func ReadHeader(r *bufio.Reader) (*Header, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedData, err)
	}
	if line != "ply" {
		return nil, ErrInvalidMagic
	}

	h := &Header{}
	sawFormat := false
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, fmt.Errorf("%w: header not terminated", ErrTruncatedData)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "format":
			if len(fields) != 3 {
				return nil, fmt.Errorf("%w: %q", ErrInvalidHeader, line)
			}
			switch fields[1] {
			case "ascii":
				h.Format = FormatASCII
			case "binary_little_endian":
				h.Format = FormatBinaryLittleEndian
			case "binary_big_endian":
				h.Format = FormatBinaryBigEndian
			default:
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fields[1])
			}
			h.Version = fields[2]
			sawFormat = true
		case "comment":
			h.Comments = append(h.Comments, strings.TrimSpace(strings.TrimPrefix(line, "comment")))
		case "obj_info":
			h.ObjInfo = append(h.ObjInfo, strings.TrimSpace(strings.TrimPrefix(line, "obj_info")))
		case "element":
			if len(fields) != 3 {
				return nil, fmt.Errorf("%w: %q", ErrInvalidHeader, line)
			}
			count, err := strconv.Atoi(fields[2])
			if err != nil || count < 0 {
				return nil, fmt.Errorf("%w: bad element count %q", ErrInvalidHeader, fields[2])
			}
			h.Elements = append(h.Elements, Element{Name: fields[1], Count: count})
		case "property":
			if len(h.Elements) == 0 {
				return nil, fmt.Errorf("%w: property before element", ErrInvalidHeader)
			}
			prop, err := parseProperty(fields)
			if err != nil {
				return nil, err
			}
			el := &h.Elements[len(h.Elements)-1]
			el.Properties = append(el.Properties, prop)
		case "end_header":
			if !sawFormat {
				return nil, fmt.Errorf("%w: missing format line", ErrInvalidHeader)
			}
			return h, nil
		default:
			return nil, fmt.Errorf("%w: unknown keyword %q", ErrInvalidHeader, fields[0])
		}
	}
}

func parseProperty(fields []string) (Property, error) {
	if len(fields) >= 2 && fields[1] == "list" {
		if len(fields) != 5 {
			return Property{}, fmt.Errorf("%w: %q", ErrInvalidHeader, strings.Join(fields, " "))
		}
		countType, ok := scalarNames[fields[2]]
		if !ok || countType.IsFloat() {
			return Property{}, fmt.Errorf("%w: bad list count type %q", ErrInvalidHeader, fields[2])
		}
		valueType, ok := scalarNames[fields[3]]
		if !ok {
			return Property{}, fmt.Errorf("%w: bad list value type %q", ErrInvalidHeader, fields[3])
		}
		return Property{Name: fields[4], Type: valueType, IsList: true, CountType: countType}, nil
	}

	if len(fields) != 3 {
		return Property{}, fmt.Errorf("%w: %q", ErrInvalidHeader, strings.Join(fields, " "))
	}
	typ, ok := scalarNames[fields[1]]
	if !ok {
		return Property{}, fmt.Errorf("%w: bad property type %q", ErrInvalidHeader, fields[1])
	}
	return Property{Name: fields[2], Type: typ}, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
