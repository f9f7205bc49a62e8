package loader

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Flash image dump format versions. The low half of the version word
// selects the payload encoding; the high half carries the chip code.
const (
	dumpVersionBinV1     = 0x0001
	dumpVersionBinV2     = 0x0002
	dumpVersionELFCRC32  = 0x0100
	dumpVersionELFSHA256 = 0x0101
)

// imageHeaderSize is the fixed flash image header in front of the
// dump payload.
const imageHeaderSize = 20

// ImageHeader is the fixed header at the start of a flash core dump
// image. DataLen counts the whole image including header and checksum.
type ImageHeader struct {
	DataLen    uint32
	Version    uint32
	TasksNum   uint32
	TCBSize    uint32
	MemSegsNum uint32
}

// Chip returns the chip code packed into the version word's high half.
func (h ImageHeader) Chip() uint16 {
	return uint16(h.Version >> 16)
}

// DumpVersion returns the payload format selector from the version
// word's low half.
func (h ImageHeader) DumpVersion() uint16 {
	return uint16(h.Version & 0xFFFF)
}

// Image is a parsed and checksum-verified flash core dump image.
type Image struct {
	Header ImageHeader
	// ELF is the embedded core ELF payload.
	ELF []byte
}

// ImageError reports a malformed or corrupt flash image.
type ImageError struct {
	Reason string
}

func (e *ImageError) Error() string {
	return "bad core dump image: " + e.Reason
}

// ParseImage validates a flash core dump image and extracts its
// embedded ELF payload. Legacy binary-format dumps are rejected; they
// predate the on-device ELF writer.
func ParseImage(data []byte) (*Image, error) {
	if len(data) < imageHeaderSize {
		return nil, &ImageError{Reason: fmt.Sprintf("image is %d bytes, smaller than the %d-byte header", len(data), imageHeaderSize)}
	}

	hdr := ImageHeader{
		DataLen:    binary.LittleEndian.Uint32(data[0:4]),
		Version:    binary.LittleEndian.Uint32(data[4:8]),
		TasksNum:   binary.LittleEndian.Uint32(data[8:12]),
		TCBSize:    binary.LittleEndian.Uint32(data[12:16]),
		MemSegsNum: binary.LittleEndian.Uint32(data[16:20]),
	}

	if int(hdr.DataLen) > len(data) {
		return nil, &ImageError{Reason: fmt.Sprintf("header claims %d bytes but image holds %d", hdr.DataLen, len(data))}
	}
	if hdr.DataLen < imageHeaderSize {
		return nil, &ImageError{Reason: fmt.Sprintf("header claims %d bytes, smaller than the header itself", hdr.DataLen)}
	}
	data = data[:hdr.DataLen]

	var checksumSize int
	switch hdr.DumpVersion() {
	case dumpVersionELFCRC32:
		checksumSize = 4
	case dumpVersionELFSHA256:
		checksumSize = sha256.Size
	case dumpVersionBinV1, dumpVersionBinV2:
		return nil, &ImageError{Reason: fmt.Sprintf("binary-format dump (version 0x%04x) is not supported, rebuild with the ELF core dump format", hdr.DumpVersion())}
	default:
		return nil, &ImageError{Reason: fmt.Sprintf("unknown dump version 0x%04x", hdr.DumpVersion())}
	}

	if int(hdr.DataLen) < imageHeaderSize+checksumSize {
		return nil, &ImageError{Reason: "image too small to hold its checksum"}
	}

	payload := data[imageHeaderSize : hdr.DataLen-uint32(checksumSize)]
	stored := data[hdr.DataLen-uint32(checksumSize):]
	covered := data[:hdr.DataLen-uint32(checksumSize)]

	switch hdr.DumpVersion() {
	case dumpVersionELFCRC32:
		want := binary.LittleEndian.Uint32(stored)
		got := crc32.ChecksumIEEE(covered)
		if got != want {
			return nil, &ImageError{Reason: fmt.Sprintf("CRC32 mismatch: computed 0x%08x, stored 0x%08x", got, want)}
		}
	case dumpVersionELFSHA256:
		got := sha256.Sum256(covered)
		if !bytes.Equal(got[:], stored) {
			return nil, &ImageError{Reason: "SHA256 mismatch"}
		}
	}

	if !bytes.HasPrefix(payload, elfMagic) {
		return nil, &ImageError{Reason: "payload is not an ELF"}
	}

	return &Image{Header: hdr, ELF: payload}, nil
}
