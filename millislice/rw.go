// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package millislice

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// Writer writes millislices to an output stream, as little-endian words.
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter creates a millislice writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes one serialized millislice.
func (w *Writer) Write(slice []uint32) error {
	if len(slice) < HeaderWords {
		return xerrors.Errorf("millislice: could not write slice: too short (%d words)", len(slice))
	}
	n := 4 * len(slice)
	if cap(w.buf) < n {
		w.buf = make([]byte, n)
	}
	buf := w.buf[:n]
	for i, v := range slice {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	_, err := w.w.Write(buf)
	if err != nil {
		return xerrors.Errorf("millislice: could not write slice: %w", err)
	}
	return nil
}

// Reader reads millislices from an input stream.
type Reader struct {
	r   io.Reader
	buf []byte
}

// NewReader creates a millislice reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, buf: make([]byte, 4*HeaderWords)}
}

// Read reads the next serialized millislice.
// Read returns io.EOF at the end of the stream.
func (r *Reader) Read() ([]uint32, error) {
	hdr := r.buf[:4*HeaderWords]
	_, err := io.ReadFull(r.r, hdr)
	switch {
	case err == io.EOF:
		return nil, io.EOF
	case err != nil:
		return nil, xerrors.Errorf("millislice: could not read slice header: %w", err)
	}

	n := int(binary.LittleEndian.Uint32(hdr))
	if n < HeaderWords {
		return nil, xerrors.Errorf("millislice: invalid slice length %d", n)
	}
	if cap(r.buf) < 4*n {
		buf := make([]byte, 4*n)
		copy(buf, hdr)
		r.buf = buf
	}
	raw := r.buf[:4*n]
	_, err = io.ReadFull(r.r, raw[4*HeaderWords:])
	if err != nil {
		return nil, xerrors.Errorf("millislice: could not read slice body: %w", err)
	}

	slice := make([]uint32, n)
	for i := range slice {
		slice[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return slice, nil
}
