// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrMalformed is returned for datagrams that are not a valid frame.
var ErrMalformed = errors.New("malformed frame")

// Kind identifies a frame by its element count.
type Kind int

const (
	KindFilename Kind = 1 // [filename]
	KindPin      Kind = 2 // [pin, brightness]
	KindLevels   Kind = 3 // [levels, mean, std]
)

func (k Kind) String() string {
	switch k {
	case KindFilename:
		return "filename"
	case KindPin:
		return "pin"
	case KindLevels:
		return "levels"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Frame is one broadcast datagram, encoded as a msgpack array whose length
// selects the meaning.
type Frame struct {
	Kind       Kind
	Filename   string
	Pin        int
	Brightness float64
	Levels     []float64
	Mean       []float64
	Std        []float64
}

// FilenameFrame announces the song that started playing.
func FilenameFrame(name string) Frame {
	return Frame{Kind: KindFilename, Filename: name}
}

// PinFrame sets one logical channel.
func PinFrame(pin int, brightness float64) Frame {
	return Frame{Kind: KindPin, Pin: pin, Brightness: brightness}
}

// LevelsFrame carries one chunk's levels and the baseline to map them with.
func LevelsFrame(levels, mean, std []float64) Frame {
	return Frame{Kind: KindLevels, Levels: levels, Mean: mean, Std: std}
}

// MarshalBinary encodes the frame.
func (f Frame) MarshalBinary() ([]byte, error) {
	var payload []any
	switch f.Kind {
	case KindFilename:
		payload = []any{f.Filename}
	case KindPin:
		payload = []any{f.Pin, f.Brightness}
	case KindLevels:
		payload = []any{f.Levels, f.Mean, f.Std}
	default:
		return nil, fmt.Errorf("%w: unknown kind %v", ErrMalformed, f.Kind)
	}
	return msgpack.Marshal(payload)
}

// Decode parses a datagram. Anything that is not a 1, 2 or 3 element array
// of the expected types is ErrMalformed.
func Decode(data []byte) (Frame, error) {
	var payload []any
	if err := msgpack.Unmarshal(data, &payload); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch len(payload) {
	case 1:
		name, ok := payload[0].(string)
		if !ok {
			return Frame{}, fmt.Errorf("%w: filename is %T", ErrMalformed, payload[0])
		}
		return FilenameFrame(name), nil

	case 2:
		pin, ok := toInt(payload[0])
		if !ok {
			return Frame{}, fmt.Errorf("%w: pin is %T", ErrMalformed, payload[0])
		}
		b, ok := toFloat(payload[1])
		if !ok {
			return Frame{}, fmt.Errorf("%w: brightness is %T", ErrMalformed, payload[1])
		}
		if !finite(b) {
			return Frame{}, fmt.Errorf("%w: brightness %v", ErrMalformed, b)
		}
		return PinFrame(pin, b), nil

	case 3:
		var vecs [3][]float64
		for i, v := range payload {
			vec, ok := toFloats(v)
			if !ok {
				return Frame{}, fmt.Errorf("%w: element %d is %T", ErrMalformed, i, v)
			}
			vecs[i] = vec
		}
		n := len(vecs[0])
		if n == 0 || len(vecs[1]) != n || len(vecs[2]) != n {
			return Frame{}, fmt.Errorf("%w: vector lengths %d/%d/%d",
				ErrMalformed, len(vecs[0]), len(vecs[1]), len(vecs[2]))
		}
		for i, vec := range vecs {
			for _, v := range vec {
				if !finite(v) {
					return Frame{}, fmt.Errorf("%w: element %d holds %v", ErrMalformed, i, v)
				}
			}
		}
		return LevelsFrame(vecs[0], vecs[1], vecs[2]), nil

	default:
		return Frame{}, fmt.Errorf("%w: %d elements", ErrMalformed, len(payload))
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toFloats(v any) ([]float64, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := toFloat(item)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
