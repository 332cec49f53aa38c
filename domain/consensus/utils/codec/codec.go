// Package codec implements the canonical, length-prefixed binary encoding
// used for every on-wire and on-disk entity: headers, blocks, transactions,
// outputs and contract state. Encoding is little-endian and byte-exact, so
// two honest nodes that construct the same logical value always produce
// the same bytes.
package codec

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

// ErrMalformed indicates the input could not be decoded as a well-formed
// instance of the target type.
var ErrMalformed = errors.New("malformed encoding")

// WriteUint8 writes a single byte.
func WriteUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

// WriteUint32 writes v little-endian.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// WriteUint64 writes v little-endian.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// WriteVarUint writes v as a LEB128-style variable-length unsigned integer,
// the length-prefix encoding used for every vector field.
func WriteVarUint(w io.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

// WriteBytes writes a length-prefixed byte slice.
func WriteBytes(w io.Writer, b []byte) error {
	if err := WriteVarUint(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// WriteHash writes a hash's raw 32 bytes, substituting the zero hash for
// nil.
func WriteHash(w io.Writer, h *externalapi.DomainHash) error {
	if h == nil {
		_, err := w.Write(externalapi.ZeroHash[:])
		return err
	}
	_, err := w.Write(h[:])
	return err
}

// ReadUint8 reads a single byte.
func ReadUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, wrapEOF(err)
	}
	return buf[0], nil
}

// ReadUint32 reads a little-endian uint32.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, wrapEOF(err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadUint64 reads a little-endian uint64.
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, wrapEOF(err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadVarUint reads a LEB128-style variable-length unsigned integer.
func ReadVarUint(r io.Reader) (uint64, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = &byteReaderAdapter{r}
	}
	v, err := binary.ReadUvarint(br)
	if err != nil {
		return 0, wrapEOF(err)
	}
	return v, nil
}

// maxReadBytesLength bounds how much a single WriteBytes payload may claim
// to be, guarding decoders against a malicious or corrupt length prefix.
const maxReadBytesLength = 64 * 1024 * 1024

// ReadBytes reads a length-prefixed byte slice.
func ReadBytes(r io.Reader) ([]byte, error) {
	length, err := ReadVarUint(r)
	if err != nil {
		return nil, err
	}
	if length > maxReadBytesLength {
		return nil, errors.Wrapf(ErrMalformed, "claimed length %d exceeds maximum", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, wrapEOF(err)
	}
	return buf, nil
}

// ReadHash reads a 32-byte hash.
func ReadHash(r io.Reader) (externalapi.DomainHash, error) {
	var h externalapi.DomainHash
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return h, wrapEOF(err)
	}
	return h, nil
}

func wrapEOF(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrap(ErrMalformed, err.Error())
	}
	return err
}

type byteReaderAdapter struct {
	io.Reader
}

func (a *byteReaderAdapter) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(a.Reader, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// IsMalformed reports whether err indicates a malformed input rather than
// an I/O failure on the underlying reader.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}

// NewBuffer is a convenience constructor for an in-memory encode/decode
// buffer.
func NewBuffer() *bytes.Buffer {
	return &bytes.Buffer{}
}
