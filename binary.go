package datfs

import (
	"encoding/binary"
)

// Typed reads and writes use big-endian byte order. A read that hits the
// end of the file before the value is complete returns
// io.ErrUnexpectedEOF; one that reads nothing returns io.EOF.

// ReadUint8 reads one byte.
func (f *File) ReadUint8() (uint8, error) {
	var v uint8
	err := binary.Read(f, binary.BigEndian, &v)
	return v, err
}

// ReadInt8 reads one signed byte.
func (f *File) ReadInt8() (int8, error) {
	var v int8
	err := binary.Read(f, binary.BigEndian, &v)
	return v, err
}

// ReadUint16 reads a big-endian uint16.
func (f *File) ReadUint16() (uint16, error) {
	var v uint16
	err := binary.Read(f, binary.BigEndian, &v)
	return v, err
}

// ReadInt16 reads a big-endian int16.
func (f *File) ReadInt16() (int16, error) {
	var v int16
	err := binary.Read(f, binary.BigEndian, &v)
	return v, err
}

// ReadUint32 reads a big-endian uint32.
func (f *File) ReadUint32() (uint32, error) {
	var v uint32
	err := binary.Read(f, binary.BigEndian, &v)
	return v, err
}

// ReadInt32 reads a big-endian int32.
func (f *File) ReadInt32() (int32, error) {
	var v int32
	err := binary.Read(f, binary.BigEndian, &v)
	return v, err
}

// ReadFloat32 reads a big-endian IEEE-754 float32.
func (f *File) ReadFloat32() (float32, error) {
	var v float32
	err := binary.Read(f, binary.BigEndian, &v)
	return v, err
}

// ReadBool reads a big-endian int32 and reports whether it is non-zero.
func (f *File) ReadBool() (bool, error) {
	v, err := f.ReadInt32()
	return v != 0, err
}

// ReadUint8s fills dst.
func (f *File) ReadUint8s(dst []uint8) error {
	return binary.Read(f, binary.BigEndian, dst)
}

// ReadInt16s fills dst with big-endian int16 values.
func (f *File) ReadInt16s(dst []int16) error {
	return binary.Read(f, binary.BigEndian, dst)
}

// ReadUint16s fills dst with big-endian uint16 values.
func (f *File) ReadUint16s(dst []uint16) error {
	return binary.Read(f, binary.BigEndian, dst)
}

// ReadInt32s fills dst with big-endian int32 values.
func (f *File) ReadInt32s(dst []int32) error {
	return binary.Read(f, binary.BigEndian, dst)
}

// ReadUint32s fills dst with big-endian uint32 values.
func (f *File) ReadUint32s(dst []uint32) error {
	return binary.Read(f, binary.BigEndian, dst)
}

// WriteUint8 writes one byte.
func (f *File) WriteUint8(v uint8) error {
	return f.WriteByte(v)
}

// WriteInt8 writes one signed byte.
func (f *File) WriteInt8(v int8) error {
	return binary.Write(f, binary.BigEndian, v)
}

// WriteUint16 writes a big-endian uint16.
func (f *File) WriteUint16(v uint16) error {
	return binary.Write(f, binary.BigEndian, v)
}

// WriteInt16 writes a big-endian int16.
func (f *File) WriteInt16(v int16) error {
	return binary.Write(f, binary.BigEndian, v)
}

// WriteUint32 writes a big-endian uint32.
func (f *File) WriteUint32(v uint32) error {
	return binary.Write(f, binary.BigEndian, v)
}

// WriteInt32 writes a big-endian int32.
func (f *File) WriteInt32(v int32) error {
	return binary.Write(f, binary.BigEndian, v)
}

// WriteFloat32 writes a big-endian IEEE-754 float32.
func (f *File) WriteFloat32(v float32) error {
	return binary.Write(f, binary.BigEndian, v)
}

// WriteBool writes v as a big-endian int32 0 or 1.
func (f *File) WriteBool(v bool) error {
	var n int32
	if v {
		n = 1
	}
	return f.WriteInt32(n)
}

// WriteUint8s writes src.
func (f *File) WriteUint8s(src []uint8) error {
	_, err := f.Write(src)
	return err
}

// WriteInt16s writes src as big-endian int16 values.
func (f *File) WriteInt16s(src []int16) error {
	return binary.Write(f, binary.BigEndian, src)
}

// WriteUint16s writes src as big-endian uint16 values.
func (f *File) WriteUint16s(src []uint16) error {
	return binary.Write(f, binary.BigEndian, src)
}

// WriteInt32s writes src as big-endian int32 values.
func (f *File) WriteInt32s(src []int32) error {
	return binary.Write(f, binary.BigEndian, src)
}

// WriteUint32s writes src as big-endian uint32 values.
func (f *File) WriteUint32s(src []uint32) error {
	return binary.Write(f, binary.BigEndian, src)
}

// WriteInt32sAsPairs writes each value as its high then low 16-bit half,
// each big-endian. The output is byte-identical to WriteInt32s.
func (f *File) WriteInt32sAsPairs(src []int32) error {
	for _, v := range src {
		if err := f.WriteUint16(uint16(uint32(v) >> 16)); err != nil { //nolint:gosec // high half
			return err
		}
		if err := f.WriteUint16(uint16(v)); err != nil { //nolint:gosec // low half
			return err
		}
	}
	return nil
}
