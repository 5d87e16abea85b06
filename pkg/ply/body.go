package ply

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// valueReader yields body values one scalar at a time.
type valueReader interface {
	scalar(t ScalarType) (float64, error)
}

func newValueReader(r *bufio.Reader, f Format) valueReader {
	switch f {
	case FormatBinaryLittleEndian:
		return &binaryReader{r: r, order: binary.LittleEndian}
	case FormatBinaryBigEndian:
		return &binaryReader{r: r, order: binary.BigEndian}
	default:
		s := bufio.NewScanner(r)
		s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		s.Split(bufio.ScanWords)
		return &asciiReader{s: s}
	}
}

type asciiReader struct {
	s *bufio.Scanner
}

func (a *asciiReader) scalar(t ScalarType) (float64, error) {
	if !a.s.Scan() {
		if err := a.s.Err(); err != nil {
			return 0, err
		}
		return 0, ErrTruncatedData
	}
	tok := a.s.Text()
	if t.IsFloat() {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing %s %q: %w", t, tok, err)
		}
		return v, nil
	}
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s %q: %w", t, tok, err)
	}
	return float64(v), nil
}

type binaryReader struct {
	r     *bufio.Reader
	order binary.ByteOrder
	buf   [8]byte
}

func (b *binaryReader) scalar(t ScalarType) (float64, error) {
	n := t.Size()
	if n == 0 {
		return 0, fmt.Errorf("%w: unknown scalar type %d", ErrInvalidHeader, int(t))
	}
	if _, err := io.ReadFull(b.r, b.buf[:n]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, ErrTruncatedData
		}
		return 0, fmt.Errorf("reading %s: %w", t, err)
	}
	p := b.buf[:n]
	switch t {
	case Int8:
		return float64(int8(p[0])), nil
	case Uint8:
		return float64(p[0]), nil
	case Int16:
		return float64(int16(b.order.Uint16(p))), nil
	case Uint16:
		return float64(b.order.Uint16(p)), nil
	case Int32:
		return float64(int32(b.order.Uint32(p))), nil
	case Uint32:
		return float64(b.order.Uint32(p)), nil
	case Float32:
		return float64(math.Float32frombits(b.order.Uint32(p))), nil
	default:
		return math.Float64frombits(b.order.Uint64(p)), nil
	}
}

// readList reads one list property value into dst, reusing its storage.
func readList(vr valueReader, p Property, dst []float64) ([]float64, error) {
	n, err := vr.scalar(p.CountType)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative list length", ErrInvalidHeader)
	}
	dst = dst[:0]
	for i := 0; i < int(n); i++ {
		v, err := vr.scalar(p.Type)
		if err != nil {
			return nil, err
		}
		dst = append(dst, v)
	}
	return dst, nil
}

// skipElement consumes every instance of an element the decoder does not use.
func skipElement(vr valueReader, el *Element) error {
	var scratch []float64
	for i := 0; i < el.Count; i++ {
		for _, p := range el.Properties {
			var err error
			if p.IsList {
				scratch, err = readList(vr, p, scratch)
			} else {
				_, err = vr.scalar(p.Type)
			}
			if err != nil {
				return fmt.Errorf("element %s[%d].%s: %w", el.Name, i, p.Name, err)
			}
		}
	}
	return nil
}
