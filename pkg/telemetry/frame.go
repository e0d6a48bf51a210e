// Package telemetry records the control loop's per-tick output for offline
// analysis: a snappy-compressed JSONL event log next to a zstd-compressed
// stream of binary frames.
package telemetry

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Frame is one tick of actuator output.
type Frame struct {
	Seq       uint64
	Time      float64 // loop time (s)
	RudderDeg float64
	JointDeg  []float64
	PWM       []float64
}

// Field numbers of the frame payload.
const (
	fieldSeq    protowire.Number = 1
	fieldTime   protowire.Number = 2
	fieldRudder protowire.Number = 3
	fieldJoints protowire.Number = 4
	fieldPWM    protowire.Number = 5
)

// ErrMalformedFrame is returned when a payload cannot be decoded.
var ErrMalformedFrame = errors.New("telemetry: malformed frame")

// MarshalFrame encodes f in protobuf wire format (packed doubles for the
// joint and pulse arrays) so any protobuf tooling can read the stream.
func MarshalFrame(f Frame) []byte {
	b := make([]byte, 0, 32+8*(len(f.JointDeg)+len(f.PWM)))
	b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, f.Seq)
	b = protowire.AppendTag(b, fieldTime, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(f.Time))
	b = protowire.AppendTag(b, fieldRudder, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(f.RudderDeg))
	b = appendPacked(b, fieldJoints, f.JointDeg)
	b = appendPacked(b, fieldPWM, f.PWM)
	return b
}

func appendPacked(b []byte, num protowire.Number, vs []float64) []byte {
	if len(vs) == 0 {
		return b
	}
	packed := make([]byte, 0, 8*len(vs))
	for _, v := range vs {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// UnmarshalFrame decodes a payload written by MarshalFrame. Unknown fields
// are skipped.
func UnmarshalFrame(b []byte) (Frame, error) {
	var f Frame
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldSeq && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: seq: %v", ErrMalformedFrame, protowire.ParseError(n))
			}
			f.Seq = v
			b = b[n:]
		case (num == fieldTime || num == fieldRudder) && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
			}
			if num == fieldTime {
				f.Time = math.Float64frombits(v)
			} else {
				f.RudderDeg = math.Float64frombits(v)
			}
			b = b[n:]
		case (num == fieldJoints || num == fieldPWM) && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
			}
			vs, err := consumePacked(raw)
			if err != nil {
				return Frame{}, err
			}
			if num == fieldJoints {
				f.JointDeg = vs
			} else {
				f.PWM = vs
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return f, nil
}

func consumePacked(raw []byte) ([]float64, error) {
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("%w: packed length %d", ErrMalformedFrame, len(raw))
	}
	out := make([]float64, 0, len(raw)/8)
	for len(raw) > 0 {
		v, n := protowire.ConsumeFixed64(raw)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		out = append(out, math.Float64frombits(v))
		raw = raw[n:]
	}
	return out, nil
}
