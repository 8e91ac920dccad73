package summary

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

const crcMaskDelta = 0xa282ead8

// maskedCRC is the TFRecord checksum: crc32c rotated right by 15 bits plus a constant
func maskedCRC(data []byte) uint32 {
	crc := crc32.Checksum(data, crcTable)
	return ((crc >> 15) | (crc << 17)) + crcMaskDelta
}

// writeRecord frames payload as a TFRecord
func writeRecord(w io.Writer, payload []byte) error {
	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(len(payload)))
	binary.LittleEndian.PutUint32(header[8:], maskedCRC(header[:8]))

	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[:], maskedCRC(payload))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := w.Write(footer[:])
	return err
}

// readRecord reads one framed record. It returns io.EOF only at a clean record boundary
func readRecord(r *bufio.Reader) ([]byte, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("truncated record header: %w", err)
	}

	if got, want := binary.LittleEndian.Uint32(header[8:]), maskedCRC(header[:8]); got != want {
		return nil, fmt.Errorf("record length checksum mismatch: %08x != %08x", got, want)
	}

	length := binary.LittleEndian.Uint64(header[:8])
	if length > maxRecordSize {
		return nil, fmt.Errorf("record length %d exceeds limit", length)
	}

	payload := make([]byte, length+4)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("truncated record: %w", err)
	}

	data := payload[:length]
	if got, want := binary.LittleEndian.Uint32(payload[length:]), maskedCRC(data); got != want {
		return nil, fmt.Errorf("record data checksum mismatch: %08x != %08x", got, want)
	}
	return data, nil
}

const maxRecordSize = 64 << 20
