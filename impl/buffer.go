package impl

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/polyglot/errors"
)

// Buffer helpers shared by backends whose buffer values are byte slices.
// Offsets are checked against the slice; a nil order is rejected.

func bufferWindow(buf []byte, order binary.ByteOrder, offset int64, width int) ([]byte, error) {
	if order == nil {
		return nil, errors.InvalidInput(errors.PhaseDispatch, "byte order is required")
	}
	if offset < 0 || offset+int64(width) > int64(len(buf)) {
		return nil, errors.OutOfBounds(errors.PhaseDispatch, []string{"buffer"}, offset, int64(len(buf)))
	}
	return buf[offset : offset+int64(width)], nil
}

// ReadByteAt reads one byte at offset.
func ReadByteAt(buf []byte, offset int64) (byte, error) {
	if offset < 0 || offset >= int64(len(buf)) {
		return 0, errors.OutOfBounds(errors.PhaseDispatch, []string{"buffer"}, offset, int64(len(buf)))
	}
	return buf[offset], nil
}

// WriteByteAt writes one byte at offset.
func WriteByteAt(buf []byte, offset int64, v byte) error {
	if offset < 0 || offset >= int64(len(buf)) {
		return errors.OutOfBounds(errors.PhaseDispatch, []string{"buffer"}, offset, int64(len(buf)))
	}
	buf[offset] = v
	return nil
}

func ReadInt16At(buf []byte, order binary.ByteOrder, offset int64) (int16, error) {
	w, err := bufferWindow(buf, order, offset, 2)
	if err != nil {
		return 0, err
	}
	return int16(order.Uint16(w)), nil
}

func WriteInt16At(buf []byte, order binary.ByteOrder, offset int64, v int16) error {
	w, err := bufferWindow(buf, order, offset, 2)
	if err != nil {
		return err
	}
	order.PutUint16(w, uint16(v))
	return nil
}

func ReadInt32At(buf []byte, order binary.ByteOrder, offset int64) (int32, error) {
	w, err := bufferWindow(buf, order, offset, 4)
	if err != nil {
		return 0, err
	}
	return int32(order.Uint32(w)), nil
}

func WriteInt32At(buf []byte, order binary.ByteOrder, offset int64, v int32) error {
	w, err := bufferWindow(buf, order, offset, 4)
	if err != nil {
		return err
	}
	order.PutUint32(w, uint32(v))
	return nil
}

func ReadInt64At(buf []byte, order binary.ByteOrder, offset int64) (int64, error) {
	w, err := bufferWindow(buf, order, offset, 8)
	if err != nil {
		return 0, err
	}
	return int64(order.Uint64(w)), nil
}

func WriteInt64At(buf []byte, order binary.ByteOrder, offset int64, v int64) error {
	w, err := bufferWindow(buf, order, offset, 8)
	if err != nil {
		return err
	}
	order.PutUint64(w, uint64(v))
	return nil
}

func ReadFloat32At(buf []byte, order binary.ByteOrder, offset int64) (float32, error) {
	w, err := bufferWindow(buf, order, offset, 4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(order.Uint32(w)), nil
}

func WriteFloat32At(buf []byte, order binary.ByteOrder, offset int64, v float32) error {
	w, err := bufferWindow(buf, order, offset, 4)
	if err != nil {
		return err
	}
	order.PutUint32(w, math.Float32bits(v))
	return nil
}

func ReadFloat64At(buf []byte, order binary.ByteOrder, offset int64) (float64, error) {
	w, err := bufferWindow(buf, order, offset, 8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(order.Uint64(w)), nil
}

func WriteFloat64At(buf []byte, order binary.ByteOrder, offset int64, v float64) error {
	w, err := bufferWindow(buf, order, offset, 8)
	if err != nil {
		return err
	}
	order.PutUint64(w, math.Float64bits(v))
	return nil
}
