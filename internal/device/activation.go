package device

import (
	"encoding/hex"
	"fmt"

	"github.com/sencol/hub/internal/stream"
)

// Command is one step of an activation sequence: a numeric command
// identifier and its payload.
type Command struct {
	ID      byte
	Payload []byte
}

func (c Command) String() string {
	return fmt.Sprintf("0x%02X[%s]", c.ID, hex.EncodeToString(c.Payload))
}

// FrameFunc wraps a command in the device's wire framing.
type FrameFunc func(id byte, payload []byte) []byte

const (
	zephyrSTX = 0x02
	zephyrETX = 0x03
)

// ZephyrFrame builds a Zephyr BioHarness message frame:
// STX, message id, payload length, payload, CRC-8, ETX.
func ZephyrFrame(id byte, payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+5)
	frame = append(frame, zephyrSTX, id, byte(len(payload)))
	frame = append(frame, payload...)
	frame = append(frame, crc8(payload), zephyrETX)
	return frame
}

// crc8 is the reflected CRC-8 (polynomial 0x8C) used by Zephyr devices.
func crc8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8C
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// TextFrame renders a command as a text line, "CMD <id> <hex payload>",
// for line-oriented bridges and simulated devices.
func TextFrame(id byte, payload []byte) []byte {
	return []byte(fmt.Sprintf("CMD %d %s\n", id, hex.EncodeToString(payload)))
}

// Bioharness command identifiers.
const (
	bhBreathing    = 0x15
	bhECG          = 0x16
	bhRR           = 0x19
	bhAcceleration = 0x1E
	bhLifeSign     = 0xA4
	bhSummary      = 0xBD
)

// DefaultActivation returns the activation sequence a family needs when no
// sequence is configured: enable the data channels, disable the device's
// own idle timeout, and set the summary interval to one second.
func DefaultActivation(f stream.Family) []Command {
	switch f {
	case stream.Bioharness:
		return []Command{
			{ID: bhECG, Payload: []byte{1}},
			{ID: bhBreathing, Payload: []byte{1}},
			{ID: bhAcceleration, Payload: []byte{1}},
			{ID: bhRR, Payload: []byte{1}},
			{ID: bhLifeSign, Payload: []byte{0, 0, 0, 0}},
			{ID: bhSummary, Payload: []byte{1, 0}},
		}
	default:
		return nil
	}
}
