package archive

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Table field numbers.
const (
	fieldSampling = 1
	fieldObject   = 2
	fieldProperty = 3
	fieldMeta     = 4

	fieldTSPerCycle = 1
	fieldTSTime     = 2
	fieldTSTimes    = 3

	fieldObjName     = 1
	fieldObjKind     = 2
	fieldObjParent   = 3
	fieldObjSampling = 4
	fieldObjSamples  = 5

	fieldPropObject   = 1
	fieldPropName     = 2
	fieldPropPOD      = 3
	fieldPropExtent   = 4
	fieldPropScope    = 5
	fieldPropSampling = 6
	fieldPropSample   = 7

	fieldSampleIndex      = 1
	fieldSampleOffset     = 2
	fieldSampleCompressed = 3
	fieldSampleSize       = 4
	fieldSampleCount      = 5

	fieldMetaKey   = 1
	fieldMetaValue = 2
)

type objectRecord struct {
	name       string
	kind       Kind
	parent     int // -1 for the top object
	sampling   uint32
	numSamples uint32
}

type sampleRef struct {
	index      uint32 // time index within the property's sampling
	offset     uint64
	compressed uint32
	size       uint32
	count      uint32 // number of elements (scalars / extent)
}

type propertyRecord struct {
	object   int
	name     string
	pod      POD
	extent   uint8
	scope    Scope
	sampling uint32
	samples  []sampleRef
}

type metaEntry struct {
	key, value string
}

type table struct {
	samplings []TimeSampling
	objects   []objectRecord
	props     []propertyRecord
	meta      []metaEntry
}

func (t *table) marshal() []byte {
	var b []byte
	for _, ts := range t.samplings {
		var m []byte
		m = protowire.AppendTag(m, fieldTSPerCycle, protowire.VarintType)
		m = protowire.AppendVarint(m, uint64(ts.SamplesPerCycle))
		m = protowire.AppendTag(m, fieldTSTime, protowire.Fixed64Type)
		m = protowire.AppendFixed64(m, math.Float64bits(ts.TimePerCycle))
		for _, tv := range ts.Times {
			m = protowire.AppendTag(m, fieldTSTimes, protowire.Fixed64Type)
			m = protowire.AppendFixed64(m, math.Float64bits(tv))
		}
		b = protowire.AppendTag(b, fieldSampling, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}

	for _, o := range t.objects {
		var m []byte
		m = protowire.AppendTag(m, fieldObjName, protowire.BytesType)
		m = protowire.AppendString(m, o.name)
		m = protowire.AppendTag(m, fieldObjKind, protowire.VarintType)
		m = protowire.AppendVarint(m, uint64(o.kind))
		m = protowire.AppendTag(m, fieldObjParent, protowire.VarintType)
		m = protowire.AppendVarint(m, uint64(o.parent+1))
		m = protowire.AppendTag(m, fieldObjSampling, protowire.VarintType)
		m = protowire.AppendVarint(m, uint64(o.sampling))
		m = protowire.AppendTag(m, fieldObjSamples, protowire.VarintType)
		m = protowire.AppendVarint(m, uint64(o.numSamples))
		b = protowire.AppendTag(b, fieldObject, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}

	for _, p := range t.props {
		var m []byte
		m = protowire.AppendTag(m, fieldPropObject, protowire.VarintType)
		m = protowire.AppendVarint(m, uint64(p.object))
		m = protowire.AppendTag(m, fieldPropName, protowire.BytesType)
		m = protowire.AppendString(m, p.name)
		m = protowire.AppendTag(m, fieldPropPOD, protowire.VarintType)
		m = protowire.AppendVarint(m, uint64(p.pod))
		m = protowire.AppendTag(m, fieldPropExtent, protowire.VarintType)
		m = protowire.AppendVarint(m, uint64(p.extent))
		m = protowire.AppendTag(m, fieldPropScope, protowire.VarintType)
		m = protowire.AppendVarint(m, uint64(p.scope))
		m = protowire.AppendTag(m, fieldPropSampling, protowire.VarintType)
		m = protowire.AppendVarint(m, uint64(p.sampling))
		for _, s := range p.samples {
			var sm []byte
			sm = protowire.AppendTag(sm, fieldSampleIndex, protowire.VarintType)
			sm = protowire.AppendVarint(sm, uint64(s.index))
			sm = protowire.AppendTag(sm, fieldSampleOffset, protowire.VarintType)
			sm = protowire.AppendVarint(sm, s.offset)
			sm = protowire.AppendTag(sm, fieldSampleCompressed, protowire.VarintType)
			sm = protowire.AppendVarint(sm, uint64(s.compressed))
			sm = protowire.AppendTag(sm, fieldSampleSize, protowire.VarintType)
			sm = protowire.AppendVarint(sm, uint64(s.size))
			sm = protowire.AppendTag(sm, fieldSampleCount, protowire.VarintType)
			sm = protowire.AppendVarint(sm, uint64(s.count))
			m = protowire.AppendTag(m, fieldPropSample, protowire.BytesType)
			m = protowire.AppendBytes(m, sm)
		}
		b = protowire.AppendTag(b, fieldProperty, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}

	for _, e := range t.meta {
		var m []byte
		m = protowire.AppendTag(m, fieldMetaKey, protowire.BytesType)
		m = protowire.AppendString(m, e.key)
		m = protowire.AppendTag(m, fieldMetaValue, protowire.BytesType)
		m = protowire.AppendString(m, e.value)
		b = protowire.AppendTag(b, fieldMeta, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}
	return b
}

// fieldFunc handles one decoded field. Unknown fields are skipped by the caller
// when the handler returns handled == false.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (n int, handled bool, err error)

func walkFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrCorruptTable, protowire.ParseError(n))
		}
		b = b[n:]

		used, handled, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if !handled {
			used = protowire.ConsumeFieldValue(num, typ, b)
		}
		if used < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrCorruptTable, num, protowire.ParseError(used))
		}
		b = b[used:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte, dst *uint64) (int, bool, error) {
	if typ != protowire.VarintType {
		return 0, false, nil
	}
	v, n := protowire.ConsumeVarint(b)
	*dst = v
	return n, true, nil
}

func consumeBytes(typ protowire.Type, b []byte, dst *[]byte) (int, bool, error) {
	if typ != protowire.BytesType {
		return 0, false, nil
	}
	v, n := protowire.ConsumeBytes(b)
	*dst = v
	return n, true, nil
}

func unmarshalTable(b []byte) (*table, error) {
	t := &table{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		var msg []byte
		n, ok, _ := consumeBytes(typ, b, &msg)
		if !ok || n < 0 {
			return n, ok, nil
		}
		var err error
		switch num {
		case fieldSampling:
			var ts TimeSampling
			ts, err = unmarshalSampling(msg)
			t.samplings = append(t.samplings, ts)
		case fieldObject:
			var o objectRecord
			o, err = unmarshalObject(msg)
			t.objects = append(t.objects, o)
		case fieldProperty:
			var p propertyRecord
			p, err = unmarshalProperty(msg)
			t.props = append(t.props, p)
		case fieldMeta:
			var e metaEntry
			e, err = unmarshalMeta(msg)
			t.meta = append(t.meta, e)
		}
		return n, true, err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func unmarshalSampling(b []byte) (TimeSampling, error) {
	var ts TimeSampling
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case fieldTSPerCycle:
			var v uint64
			n, ok, err := consumeVarint(typ, b, &v)
			ts.SamplesPerCycle = uint32(v)
			return n, ok, err
		case fieldTSTime, fieldTSTimes:
			if typ != protowire.Fixed64Type {
				return 0, false, nil
			}
			v, n := protowire.ConsumeFixed64(b)
			if num == fieldTSTime {
				ts.TimePerCycle = math.Float64frombits(v)
			} else {
				ts.Times = append(ts.Times, math.Float64frombits(v))
			}
			return n, true, nil
		}
		return 0, false, nil
	})
	return ts, err
}

func unmarshalObject(b []byte) (objectRecord, error) {
	var o objectRecord
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		if num == fieldObjName {
			var s []byte
			n, ok, err := consumeBytes(typ, b, &s)
			o.name = string(s)
			return n, ok, err
		}
		var v uint64
		n, ok, err := consumeVarint(typ, b, &v)
		switch num {
		case fieldObjKind:
			o.kind = Kind(v)
		case fieldObjParent:
			o.parent = int(v) - 1
		case fieldObjSampling:
			o.sampling = uint32(v)
		case fieldObjSamples:
			o.numSamples = uint32(v)
		default:
			return 0, false, nil
		}
		return n, ok, err
	})
	return o, err
}

func unmarshalProperty(b []byte) (propertyRecord, error) {
	var p propertyRecord
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case fieldPropName, fieldPropSample:
			var s []byte
			n, ok, err := consumeBytes(typ, b, &s)
			if !ok || n < 0 {
				return n, ok, err
			}
			if num == fieldPropName {
				p.name = string(s)
				return n, true, nil
			}
			ref, err := unmarshalSample(s)
			p.samples = append(p.samples, ref)
			return n, true, err
		}
		var v uint64
		n, ok, err := consumeVarint(typ, b, &v)
		switch num {
		case fieldPropObject:
			p.object = int(v)
		case fieldPropPOD:
			p.pod = POD(v)
		case fieldPropExtent:
			p.extent = uint8(v)
		case fieldPropScope:
			p.scope = Scope(v)
		case fieldPropSampling:
			p.sampling = uint32(v)
		default:
			return 0, false, nil
		}
		return n, ok, err
	})
	return p, err
}

func unmarshalSample(b []byte) (sampleRef, error) {
	var s sampleRef
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		var v uint64
		n, ok, err := consumeVarint(typ, b, &v)
		switch num {
		case fieldSampleIndex:
			s.index = uint32(v)
		case fieldSampleOffset:
			s.offset = v
		case fieldSampleCompressed:
			s.compressed = uint32(v)
		case fieldSampleSize:
			s.size = uint32(v)
		case fieldSampleCount:
			s.count = uint32(v)
		default:
			return 0, false, nil
		}
		return n, ok, err
	})
	return s, err
}

func unmarshalMeta(b []byte) (metaEntry, error) {
	var e metaEntry
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		var s []byte
		n, ok, err := consumeBytes(typ, b, &s)
		switch num {
		case fieldMetaKey:
			e.key = string(s)
		case fieldMetaValue:
			e.value = string(s)
		default:
			return 0, false, nil
		}
		return n, ok, err
	})
	return e, err
}
