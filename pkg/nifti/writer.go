package nifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"roiquant/internal/models"
	apperr "roiquant/pkg/errors"
)

const (
	headerSize = 348
	dataOffset = 352
)

// DataType is the NIfTI-1 datatype code
type DataType int16

// Supported datatype codes
const (
	Uint8   DataType = 2
	Int16   DataType = 4
	Int32   DataType = 8
	Float32 DataType = 16
	Float64 DataType = 64
	Int8    DataType = 256
	Uint16  DataType = 512
	Uint32  DataType = 768
)

// BitsPerVoxel returns the storage width of the datatype
func (d DataType) BitsPerVoxel() int {
	switch d {
	case Uint8, Int8:
		return 8
	case Int16, Uint16:
		return 16
	case Int32, Uint32, Float32:
		return 32
	case Float64:
		return 64
	}
	return 0
}

// WriteFile stores vol as a little-endian NIfTI-1 image. Paths ending in
// ".gz" are gzip compressed.
func WriteFile(path string, vol *models.LabelVolume, dt DataType) error {
	var buf bytes.Buffer
	if err := Write(&buf, vol, dt); err != nil {
		return err
	}

	data := buf.Bytes()
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		var zbuf bytes.Buffer
		zw := gzip.NewWriter(&zbuf)
		if _, err := zw.Write(data); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		data = zbuf.Bytes()
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return apperr.Wrap(err, apperr.KindIO, "failed to write image %s", path)
	}
	return nil
}

// Write encodes vol as an uncompressed NIfTI-1 stream
func Write(w io.Writer, vol *models.LabelVolume, dt DataType) error {
	bpv := dt.BitsPerVoxel()
	if bpv == 0 {
		return fmt.Errorf("unsupported datatype %d", dt)
	}
	if len(vol.Data) != vol.Len() {
		return fmt.Errorf("volume data length %d does not match %s", len(vol.Data), vol)
	}

	order := binary.LittleEndian
	out := make([]byte, dataOffset+vol.Len()*bpv/8)

	order.PutUint32(out[0:], headerSize)
	dims := [8]int16{3, int16(vol.Width), int16(vol.Height), int16(vol.Depth), 1, 1, 1, 1}
	pix := [8]float32{1, float32(vol.VoxelSize.X), float32(vol.VoxelSize.Y), float32(vol.VoxelSize.Z), 1, 1, 1, 1}
	for i := 0; i < 8; i++ {
		order.PutUint16(out[40+2*i:], uint16(dims[i]))
		order.PutUint32(out[76+4*i:], math.Float32bits(pix[i]))
	}
	order.PutUint16(out[70:], uint16(dt))
	order.PutUint16(out[72:], uint16(bpv))
	order.PutUint32(out[108:], math.Float32bits(dataOffset))
	order.PutUint32(out[112:], math.Float32bits(1))
	copy(out[344:], "n+1\x00")

	b := out[dataOffset:]
	for i, v := range vol.Data {
		switch dt {
		case Uint8:
			b[i] = uint8(v)
		case Int8:
			b[i] = uint8(int8(v))
		case Int16:
			order.PutUint16(b[2*i:], uint16(int16(v)))
		case Uint16:
			order.PutUint16(b[2*i:], uint16(v))
		case Int32:
			order.PutUint32(b[4*i:], uint32(int32(v)))
		case Uint32:
			order.PutUint32(b[4*i:], uint32(v))
		case Float32:
			order.PutUint32(b[4*i:], math.Float32bits(float32(v)))
		case Float64:
			order.PutUint64(b[8*i:], math.Float64bits(v))
		}
	}

	_, err := w.Write(out)
	return err
}
