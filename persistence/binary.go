// Package persistence provides the little-endian binary codec used by index
// snapshots.
//
// All multi-byte values are little-endian. Variable-length sections are
// length-prefixed with a uint64. Slices of numeric values are written as raw
// bytes via an unsafe reinterpretation of the backing array, which is
// byte-exact on little-endian hosts and avoids a copy.
package persistence

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unsafe"
)

// Writer writes snapshot sections in the canonical binary format.
type Writer struct {
	w         io.Writer
	byteOrder binary.ByteOrder
}

// NewWriter creates a new snapshot writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:         w,
		byteOrder: binary.LittleEndian,
	}
}

// WriteHeader writes the file header.
func (bw *Writer) WriteHeader() error {
	header := FileHeader{Magic: MagicNumber, Version: Version}
	return binary.Write(bw.w, bw.byteOrder, &header)
}

// WriteUint8 writes a single byte.
func (bw *Writer) WriteUint8(v uint8) error {
	_, err := bw.w.Write([]byte{v})
	return err
}

// WriteUint32 writes a uint32.
func (bw *Writer) WriteUint32(v uint32) error {
	return binary.Write(bw.w, bw.byteOrder, v)
}

// WriteUint64 writes a uint64.
func (bw *Writer) WriteUint64(v uint64) error {
	return binary.Write(bw.w, bw.byteOrder, v)
}

// WriteFloat32 writes a float32.
func (bw *Writer) WriteFloat32(v float32) error {
	return bw.WriteUint32(math.Float32bits(v))
}

// WriteFloat32Slice writes a length prefix followed by the slice contents.
func (bw *Writer) WriteFloat32Slice(vec []float32) error {
	if err := bw.WriteUint64(uint64(len(vec))); err != nil {
		return err
	}
	if len(vec) == 0 {
		return nil
	}
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), len(vec)*4)
	_, err := bw.w.Write(byteSlice)
	return err
}

// WriteUint32Slice writes a length prefix followed by the slice contents.
func (bw *Writer) WriteUint32Slice(slice []uint32) error {
	if err := bw.WriteUint64(uint64(len(slice))); err != nil {
		return err
	}
	if len(slice) == 0 {
		return nil
	}
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), len(slice)*4)
	_, err := bw.w.Write(byteSlice)
	return err
}

// WriteUint64Slice writes a length prefix followed by the slice contents.
func (bw *Writer) WriteUint64Slice(slice []uint64) error {
	if err := bw.WriteUint64(uint64(len(slice))); err != nil {
		return err
	}
	if len(slice) == 0 {
		return nil
	}
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), len(slice)*8)
	_, err := bw.w.Write(byteSlice)
	return err
}

// Reader reads snapshot sections written by Writer.
type Reader struct {
	r         io.Reader
	byteOrder binary.ByteOrder

	// maxSliceLen guards length prefixes read from untrusted input.
	maxSliceLen uint64
}

// NewReader creates a new snapshot reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:           r,
		byteOrder:   binary.LittleEndian,
		maxSliceLen: 1 << 34,
	}
}

// ReadHeader reads and validates the file header.
func (br *Reader) ReadHeader() error {
	var header FileHeader
	if err := binary.Read(br.r, br.byteOrder, &header); err != nil {
		return err
	}
	if header.Magic != MagicNumber {
		return fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return fmt.Errorf("%w: got %d", ErrInvalidVersion, header.Version)
	}
	return nil
}

// ReadUint8 reads a single byte.
func (br *Reader) ReadUint8() (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(br.r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadUint32 reads a uint32.
func (br *Reader) ReadUint32() (uint32, error) {
	var v uint32
	err := binary.Read(br.r, br.byteOrder, &v)
	return v, err
}

// ReadUint64 reads a uint64.
func (br *Reader) ReadUint64() (uint64, error) {
	var v uint64
	err := binary.Read(br.r, br.byteOrder, &v)
	return v, err
}

// ReadFloat32 reads a float32.
func (br *Reader) ReadFloat32() (float32, error) {
	v, err := br.ReadUint32()
	return math.Float32frombits(v), err
}

func (br *Reader) readLen() (int, error) {
	n, err := br.ReadUint64()
	if err != nil {
		return 0, err
	}
	if n > br.maxSliceLen {
		return 0, fmt.Errorf("implausible slice length %d", n)
	}
	return int(n), nil
}

// ReadFloat32Slice reads a length-prefixed float32 slice.
func (br *Reader) ReadFloat32Slice() ([]float32, error) {
	count, err := br.readLen()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	vec := make([]float32, count)
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), count*4)
	if _, err := io.ReadFull(br.r, byteSlice); err != nil {
		return nil, err
	}
	return vec, nil
}

// ReadUint32Slice reads a length-prefixed uint32 slice.
func (br *Reader) ReadUint32Slice() ([]uint32, error) {
	count, err := br.readLen()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	slice := make([]uint32, count)
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), count*4)
	if _, err := io.ReadFull(br.r, byteSlice); err != nil {
		return nil, err
	}
	return slice, nil
}

// ReadUint64Slice reads a length-prefixed uint64 slice.
func (br *Reader) ReadUint64Slice() ([]uint64, error) {
	count, err := br.readLen()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	slice := make([]uint64, count)
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), count*8)
	if _, err := io.ReadFull(br.r, byteSlice); err != nil {
		return nil, err
	}
	return slice, nil
}
