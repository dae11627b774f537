package persistence

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteSnapshot writes the snapshot envelope to w: the magic number, the
// codec byte, then the payload produced by writeFunc run through the codec.
func WriteSnapshot(w io.Writer, c Compression, writeFunc func(io.Writer) error) error {
	if !c.valid() {
		return fmt.Errorf("%w: %d", ErrUnknownCompression, uint8(c))
	}

	var header [5]byte
	binary.LittleEndian.PutUint32(header[:4], MagicNumber)
	header[4] = byte(c)
	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	cw, err := newCompressor(w, c)
	if err != nil {
		return err
	}
	if err := writeFunc(cw); err != nil {
		_ = cw.Close()
		return err
	}
	return cw.Close()
}

// ReadSnapshot reads a snapshot envelope from r, auto-detecting the codec,
// and hands the decompressed payload stream to readFunc.
func ReadSnapshot(r io.Reader, readFunc func(io.Reader) error) error {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}
	if magic := binary.LittleEndian.Uint32(header[:4]); magic != MagicNumber {
		return fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, magic)
	}

	cr, err := newDecompressor(r, Compression(header[4]))
	if err != nil {
		return err
	}
	defer cr.Close()

	return readFunc(cr)
}

// SaveToFile writes a snapshot to filename atomically: the envelope is
// written to a temp file in the same directory, synced, then renamed over
// the target.
func SaveToFile(filename string, c Compression, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	// Write to a temp file in the same directory to ensure rename is atomic.
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	// Match typical file permissions (best-effort).
	_ = tmp.Chmod(0644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := WriteSnapshot(buf, c, writeFunc); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Atomically replace target.
	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	// Success: prevent deferred cleanup from removing the final file.
	tmpName = ""
	return nil
}

// LoadFromFile reads a snapshot written by SaveToFile. On platforms with
// mmap support the file is mapped read-only and served zero-copy; otherwise
// it falls back to buffered reads.
func LoadFromFile(filename string, readFunc func(io.Reader) error) error {
	if data, unmap, err := mmapFile(filename); err == nil {
		defer func() { _ = unmap() }()
		return ReadSnapshot(bytes.NewReader(data), readFunc)
	}

	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	return ReadSnapshot(bufio.NewReaderSize(f, 256*1024), readFunc)
}
