// Package wire encodes simulation frames for visualizers and decodes the
// control messages they send back. Frames follow proto/crowd.proto and are
// written field by field with protowire, so no generated code is needed.
package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"pedsim/internal/geom"
)

// ErrMalformed is returned when a frame cannot be decoded.
var ErrMalformed = errors.New("malformed frame")

const (
	vecX protowire.Number = 1
	vecY protowire.Number = 2

	pedID       protowire.Number = 1
	pedGroup    protowire.Number = 2
	pedCrowd    protowire.Number = 3
	pedPosition protowire.Number = 4
	pedVelocity protowire.Number = 5
	pedForce    protowire.Number = 6
	pedWaiting  protowire.Number = 7
	pedLost     protowire.Number = 8
	pedFinished protowire.Number = 9

	frameTick        protowire.Number = 1
	frameTime        protowire.Number = 2
	frameEpoch       protowire.Number = 3
	frameIntegrator  protowire.Number = 4
	framePedestrians protowire.Number = 5
)

// Pedestrian is one entry of a frame.
type Pedestrian struct {
	ID       int64
	Group    int64
	Crowd    int64
	Position geom.Vec
	Velocity geom.Vec
	Force    geom.Vec
	Waiting  bool
	Lost     bool
	Finished bool
}

// Frame is the state broadcast after each tick.
type Frame struct {
	Tick        uint64
	Time        float64
	Epoch       uint64
	Integrator  string
	Pedestrians []Pedestrian
}

// EncodeFrame returns the protobuf encoding of f. Zero scalars are omitted
// as proto3 does.
func EncodeFrame(f Frame) []byte {
	return AppendFrame(nil, f)
}

// AppendFrame appends the encoding of f to b.
func AppendFrame(b []byte, f Frame) []byte {
	b = appendVarint(b, frameTick, f.Tick)
	b = appendDouble(b, frameTime, f.Time)
	b = appendVarint(b, frameEpoch, f.Epoch)
	if f.Integrator != "" {
		b = protowire.AppendTag(b, frameIntegrator, protowire.BytesType)
		b = protowire.AppendString(b, f.Integrator)
	}
	var scratch []byte
	for _, p := range f.Pedestrians {
		scratch = appendPedestrian(scratch[:0], p)
		b = protowire.AppendTag(b, framePedestrians, protowire.BytesType)
		b = protowire.AppendBytes(b, scratch)
	}
	return b
}

func appendPedestrian(b []byte, p Pedestrian) []byte {
	b = appendVarint(b, pedID, uint64(p.ID))
	b = appendVarint(b, pedGroup, uint64(p.Group))
	b = appendVarint(b, pedCrowd, uint64(p.Crowd))
	b = appendVec(b, pedPosition, p.Position)
	b = appendVec(b, pedVelocity, p.Velocity)
	b = appendVec(b, pedForce, p.Force)
	b = appendBool(b, pedWaiting, p.Waiting)
	b = appendBool(b, pedLost, p.Lost)
	b = appendBool(b, pedFinished, p.Finished)
	return b
}

func appendVec(b []byte, num protowire.Number, v geom.Vec) []byte {
	var inner []byte
	inner = appendDouble(inner, vecX, v.X)
	inner = appendDouble(inner, vecY, v.Y)
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// DecodeFrame parses a frame. Unknown fields are skipped.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == frameTick && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			f.Tick = v
			return n, nil
		case num == frameTime && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			f.Time = math.Float64frombits(v)
			return n, nil
		case num == frameEpoch && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			f.Epoch = v
			return n, nil
		case num == frameIntegrator && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			f.Integrator = v
			return n, nil
		case num == framePedestrians && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			p, err := decodePedestrian(v)
			if err != nil {
				return 0, err
			}
			f.Pedestrians = append(f.Pedestrians, p)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

func decodePedestrian(b []byte) (Pedestrian, error) {
	var p Pedestrian
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			switch num {
			case pedID:
				p.ID = int64(v)
			case pedGroup:
				p.Group = int64(v)
			case pedCrowd:
				p.Crowd = int64(v)
			case pedWaiting:
				p.Waiting = protowire.DecodeBool(v)
			case pedLost:
				p.Lost = protowire.DecodeBool(v)
			case pedFinished:
				p.Finished = protowire.DecodeBool(v)
			}
			return n, nil
		}
		if typ == protowire.BytesType && (num == pedPosition || num == pedVelocity || num == pedForce) {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			vec, err := decodeVec(v)
			if err != nil {
				return 0, err
			}
			switch num {
			case pedPosition:
				p.Position = vec
			case pedVelocity:
				p.Velocity = vec
			case pedForce:
				p.Force = vec
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return p, err
}

func decodeVec(b []byte) (geom.Vec, error) {
	var v geom.Vec
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ == protowire.Fixed64Type && (num == vecX || num == vecY) {
			bits, n := protowire.ConsumeFixed64(b)
			if num == vecX {
				v.X = math.Float64frombits(bits)
			} else {
				v.Y = math.Float64frombits(bits)
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return v, err
}

// walk calls field for every field in b. field returns the length of the
// value it consumed, or a negative protowire error code.
func walk(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		m, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}
