package message

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// MagicLen is the size in bytes of a frame's magic prefix.
	MagicLen = 4

	// CommandLen is the fixed, zero-padded width of a frame's command
	// field.
	CommandLen = 12

	// HeaderLen is the total size of a frame header: magic + command +
	// payload length + checksum.
	HeaderLen = MagicLen + CommandLen + 4 + 4

	// DefaultMaxPayload is the default value of the max-payload-size
	// Setting (spec §4.1).
	DefaultMaxPayload = 10 * 1024 * 1024
)

// Magic is the network-identifying prefix carried on every frame. Every
// codec function takes it as a parameter from the call site and never
// falls back to DefaultMagic (spec §9 Open Question).
type Magic [MagicLen]byte

// DefaultMagic is handed out by Settings when the embedding daemon does
// not override it.
var DefaultMagic = Magic{0xD9, 0xEF, 0xB6, 0x7D}

// checksum returns the first 4 bytes of a cryptographic digest of
// payload. Spec §4.1 calls for blake3; no blake3 package reaches this
// module from the retrieved example pack (see DESIGN.md), so this is
// built on stdlib sha256 behind this single function, kept isolated so
// swapping the primitive later touches one place.
func checksum(payload []byte) uint32 {
	sum := sha256.Sum256(payload)
	return binary.BigEndian.Uint32(sum[:4])
}

func encodeCommand(name string) ([CommandLen]byte, error) {
	var out [CommandLen]byte
	if len(name) > CommandLen {
		return out, fmt.Errorf("command %q exceeds %d bytes", name, CommandLen)
	}
	copy(out[:], name)
	return out, nil
}

func decodeCommand(raw [CommandLen]byte) string {
	n := CommandLen
	for n > 0 && raw[n-1] == 0 {
		n--
	}
	return string(raw[:n])
}

// EncodeFrame builds the wire frame for a message with the given command
// name and already-serialized payload bytes.
func EncodeFrame(magic Magic, name string, payload []byte, maxPayload uint32) ([]byte, error) {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}
	if uint32(len(payload)) > maxPayload {
		return nil, newCodecErr(KindOversizePayload, fmt.Errorf(
			"payload %d bytes exceeds max %d", len(payload), maxPayload))
	}

	cmd, err := encodeCommand(name)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, HeaderLen+len(payload))
	frame = append(frame, magic[:]...)
	frame = append(frame, cmd[:]...)

	var lenBuf, sumBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	binary.BigEndian.PutUint32(sumBuf[:], checksum(payload))
	frame = append(frame, lenBuf[:]...)
	frame = append(frame, sumBuf[:]...)
	frame = append(frame, payload...)

	return frame, nil
}

// DecodeStream lazily reads one frame's header off r, validates magic and
// checksum, then reads and returns the payload. It blocks until a full
// frame has arrived or r returns an error.
func DecodeStream(r io.Reader, magic Magic, maxPayload uint32) (string, []byte, error) {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}

	var header [HeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", nil, newCodecErr(KindShortRead, err)
	}

	var gotMagic Magic
	copy(gotMagic[:], header[:MagicLen])
	if gotMagic != magic {
		return "", nil, newCodecErr(KindBadMagic, nil)
	}

	var cmdRaw [CommandLen]byte
	copy(cmdRaw[:], header[MagicLen:MagicLen+CommandLen])
	name := decodeCommand(cmdRaw)

	lenOff := MagicLen + CommandLen
	payloadLen := binary.BigEndian.Uint32(header[lenOff : lenOff+4])
	wantSum := binary.BigEndian.Uint32(header[lenOff+4 : lenOff+8])

	if payloadLen > maxPayload {
		return "", nil, newCodecErr(KindOversizePayload, fmt.Errorf(
			"declared payload %d bytes exceeds max %d", payloadLen, maxPayload))
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", nil, newCodecErr(KindShortRead, err)
	}

	if checksum(payload) != wantSum {
		return "", nil, newCodecErr(KindBadChecksum, nil)
	}

	return name, payload, nil
}
