package vecindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// Binary index file layout, little-endian:
//
//	magic "PRVI" | version u32 | dim u32 | count u32 | count*dim float32
const (
	indexMagic   = "PRVI"
	indexVersion = 1
)

// WriteTo serializes the index in the binary format.
func (x *Index) WriteTo(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(indexMagic); err != nil {
		return err
	}
	for _, v := range []uint32{indexVersion, uint32(x.dim), uint32(len(x.vectors))} {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	for _, vec := range x.vectors {
		for _, f := range vec {
			if err := binary.Write(bw, binary.LittleEndian, math.Float32bits(f)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// headerSize is the serialized length of magic + version + dim + count.
const headerSize = 4 + 3*4

// ReadIndex deserializes an index from the binary format. size is the total
// serialized length; the header's dim and count are validated against it
// before any payload allocation, so a corrupt header cannot demand huge
// allocations.
func ReadIndex(r io.Reader, size int64) (*Index, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(indexMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if string(magic) != indexMagic {
		return nil, fmt.Errorf("bad magic %q", magic)
	}

	var version, dim, count uint32
	for _, p := range []*uint32{&version, &dim, &count} {
		if err := binary.Read(br, binary.LittleEndian, p); err != nil {
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
	}
	if version != indexVersion {
		return nil, fmt.Errorf("unsupported index version %d", version)
	}
	if dim == 0 {
		return nil, fmt.Errorf("invalid dimension 0")
	}

	// Compare count against the payload length instead of multiplying it
	// out, so a forged header cannot overflow or oversize the check.
	payload := size - headerSize
	vectorBytes := 4 * int64(dim)
	if payload < 0 || payload%vectorBytes != 0 || int64(count) != payload/vectorBytes {
		return nil, fmt.Errorf("header (dim=%d, count=%d) inconsistent with file size %d", dim, count, size)
	}

	x := NewIndex(int(dim))
	x.vectors = make([][]float32, 0, count)
	for i := uint32(0); i < count; i++ {
		vec := make([]float32, dim)
		for j := range vec {
			var bits uint32
			if err := binary.Read(br, binary.LittleEndian, &bits); err != nil {
				return nil, fmt.Errorf("truncated vector %d: %w", i, err)
			}
			vec[j] = math.Float32frombits(bits)
		}
		x.vectors = append(x.vectors, vec)
	}
	return x, nil
}

// writeFileAtomic writes data to path via a temp file and rename, so a
// crash mid-write never leaves a partially written artifact.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".vecindex-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
