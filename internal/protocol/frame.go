package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame layout, big-endian:
//
//	| seq (4) | type (1) | length (2) | payload (length) | checksum (4) |
//
// The checksum is the byte sum of header+payload modulo 2^32.
const (
	HeaderSize   = 7
	ChecksumSize = 4
	MaxPayload   = 65535
)

// Type identifies the payload class carried by a frame.
type Type byte

const (
	TypeGame Type = 1
	TypeChat Type = 2
)

var (
	ErrShortFrame       = errors.New("protocol: short frame")
	ErrLengthMismatch   = errors.New("protocol: length mismatch")
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")
	ErrPayloadTooLarge  = errors.New("protocol: payload too large")
)

// Frame is one parsed wire unit. Payload bytes are owned by the frame.
type Frame struct {
	Seq     uint32
	Type    Type
	Payload []byte
}

// Text returns the payload as a string.
func (f Frame) Text() string {
	return string(f.Payload)
}

// Build serializes a frame with the given sequence number, type and payload.
func Build(seq uint32, typ Type, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	buf := make([]byte, HeaderSize+len(payload)+ChecksumSize)
	binary.BigEndian.PutUint32(buf[0:4], seq)
	buf[4] = byte(typ)
	binary.BigEndian.PutUint16(buf[5:7], uint16(len(payload)))
	copy(buf[HeaderSize:], payload)

	sum := checksum(buf[:HeaderSize+len(payload)])
	binary.BigEndian.PutUint32(buf[HeaderSize+len(payload):], sum)
	return buf, nil
}

// Parse decodes and verifies one complete frame held in buf.
// An unknown type byte is not an error here; dispatch decides what to do with it.
func Parse(buf []byte) (Frame, error) {
	if len(buf) < HeaderSize+ChecksumSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(buf))
	}

	length := int(binary.BigEndian.Uint16(buf[5:7]))
	if len(buf)-HeaderSize-ChecksumSize != length {
		return Frame{}, fmt.Errorf("%w: declared %d, have %d",
			ErrLengthMismatch, length, len(buf)-HeaderSize-ChecksumSize)
	}

	body := buf[:HeaderSize+length]
	declared := binary.BigEndian.Uint32(buf[HeaderSize+length:])
	if checksum(body) != declared {
		return Frame{}, ErrChecksumMismatch
	}

	payload := make([]byte, length)
	copy(payload, buf[HeaderSize:HeaderSize+length])

	return Frame{
		Seq:     binary.BigEndian.Uint32(buf[0:4]),
		Type:    Type(buf[4]),
		Payload: payload,
	}, nil
}

// ReadFrame reads exactly one frame from r and verifies it.
// The frame is self-delimiting, so r can carry back-to-back frames.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("reading frame header: %w", err)
	}

	length := int(binary.BigEndian.Uint16(header[5:7]))
	rest := make([]byte, length+ChecksumSize)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Frame{}, fmt.Errorf("reading frame body: %w", err)
	}

	sum := checksum(header[:])
	sum += checksum(rest[:length])
	if sum != binary.BigEndian.Uint32(rest[length:]) {
		return Frame{}, ErrChecksumMismatch
	}

	return Frame{
		Seq:     binary.BigEndian.Uint32(header[0:4]),
		Type:    Type(header[4]),
		Payload: rest[:length:length],
	}, nil
}

func checksum(b []byte) uint32 {
	var sum uint32
	for _, c := range b {
		sum += uint32(c)
	}
	return sum
}
