package summary

import (
	"fmt"

	"github.com/tsawler/go-garments/internal/wire"
)

const fileVersion = "brain.Event:2"

// Event is a decoded TensorBoard event record
type Event struct {
	WallTime    float64
	Step        int64
	FileVersion string
	Values      []Value
}

// Value is one scalar summary value
type Value struct {
	Tag         string
	SimpleValue float32
}

// marshal encodes an Event message (wall_time=1, step=2, file_version=3, summary=5)
func (e Event) marshal() []byte {
	var b []byte
	b = wire.AppendFloat64(b, 1, e.WallTime)
	if e.Step != 0 {
		b = wire.AppendInt64(b, 2, e.Step)
	}
	b = wire.AppendString(b, 3, e.FileVersion)

	if len(e.Values) > 0 {
		var s []byte
		for _, v := range e.Values {
			var vb []byte
			vb = wire.AppendString(vb, 1, v.Tag)
			vb = wire.AppendFloat32(vb, 2, v.SimpleValue)
			s = wire.AppendMessage(s, 1, vb)
		}
		b = wire.AppendMessage(b, 5, s)
	}
	return b
}

func unmarshalEvent(data []byte) (Event, error) {
	var e Event
	err := wire.Parse(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			e.WallTime = f.Float64()
		case 2:
			e.Step = int64(f.Varint)
		case 3:
			e.FileVersion = f.String()
		case 5:
			return wire.Parse(f.Bytes, func(f wire.Field) error {
				if f.Num != 1 {
					return nil
				}
				var v Value
				err := wire.Parse(f.Bytes, func(f wire.Field) error {
					switch f.Num {
					case 1:
						v.Tag = f.String()
					case 2:
						v.SimpleValue = f.Float32()
					}
					return nil
				})
				if err != nil {
					return fmt.Errorf("summary value: %w", err)
				}
				e.Values = append(e.Values, v)
				return nil
			})
		}
		return nil
	})
	return e, err
}
