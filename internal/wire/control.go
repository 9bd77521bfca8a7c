package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrBadControl is returned for control messages with a key of the wrong type.
var ErrBadControl = errors.New("bad control message")

// Control keys.
const (
	KeyIntegrator = "integrator"
	KeyPaused     = "paused"
	KeyTimeScale  = "time_scale"
	KeyEpoch      = "epoch"
)

// Control is a partial update sent by a client. Absent keys are nil or empty.
type Control struct {
	Integrator string
	Paused     *bool
	TimeScale  *float64
}

// Status is the control state the server reports back.
type Status struct {
	Integrator string
	Paused     bool
	TimeScale  float64
	Epoch      uint64
}

// DecodeControl parses a binary google.protobuf.Struct.
func DecodeControl(data []byte) (Control, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return Control{}, fmt.Errorf("decode control: %w", err)
	}
	return controlFromStruct(&st)
}

// DecodeControlJSON parses the JSON form of a google.protobuf.Struct, as
// sent over a text websocket message.
func DecodeControlJSON(data []byte) (Control, error) {
	var st structpb.Struct
	if err := protojson.Unmarshal(data, &st); err != nil {
		return Control{}, fmt.Errorf("decode control: %w", err)
	}
	return controlFromStruct(&st)
}

func controlFromStruct(st *structpb.Struct) (Control, error) {
	var c Control
	for key, v := range st.GetFields() {
		switch key {
		case KeyIntegrator:
			s, ok := v.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return Control{}, fmt.Errorf("%w: %s must be a string", ErrBadControl, key)
			}
			c.Integrator = s.StringValue
		case KeyPaused:
			b, ok := v.GetKind().(*structpb.Value_BoolValue)
			if !ok {
				return Control{}, fmt.Errorf("%w: %s must be a bool", ErrBadControl, key)
			}
			paused := b.BoolValue
			c.Paused = &paused
		case KeyTimeScale:
			n, ok := v.GetKind().(*structpb.Value_NumberValue)
			if !ok {
				return Control{}, fmt.Errorf("%w: %s must be a number", ErrBadControl, key)
			}
			scale := n.NumberValue
			c.TimeScale = &scale
		}
	}
	return c, nil
}

// EncodeStatus returns s as a binary google.protobuf.Struct.
func EncodeStatus(s Status) ([]byte, error) {
	st, err := structpb.NewStruct(map[string]any{
		KeyIntegrator: s.Integrator,
		KeyPaused:     s.Paused,
		KeyTimeScale:  s.TimeScale,
		KeyEpoch:      float64(s.Epoch),
	})
	if err != nil {
		return nil, fmt.Errorf("encode status: %w", err)
	}
	return proto.Marshal(st)
}

// DecodeStatus parses a status written by EncodeStatus.
func DecodeStatus(data []byte) (Status, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return Status{}, fmt.Errorf("decode status: %w", err)
	}
	f := st.GetFields()
	return Status{
		Integrator: f[KeyIntegrator].GetStringValue(),
		Paused:     f[KeyPaused].GetBoolValue(),
		TimeScale:  f[KeyTimeScale].GetNumberValue(),
		Epoch:      uint64(f[KeyEpoch].GetNumberValue()),
	}, nil
}
