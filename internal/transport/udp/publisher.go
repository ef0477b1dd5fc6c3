// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"beatsketch/internal/transport"
)

// maxPayload keeps datagrams under the common 64KiB UDP limit.
const maxPayload = 60 * 1024

// UDPPublisher implements transport.Transport by sending each payload as
// one datagram: a small binary header followed by the JSON-encoded payload.
type UDPPublisher struct {
	sender *UDPSender

	mu          sync.Mutex    // Guards sequenceNum and packetBuffer.
	sequenceNum uint32        // Monotonically increasing sequence number for packets.
	packetBuf   *bytes.Buffer // Reusable buffer for constructing the packet.
}

// NewUDPPublisher wraps a sender.
func NewUDPPublisher(sender *UDPSender) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	return &UDPPublisher{
		sender:    sender,
		packetBuf: new(bytes.Buffer),
	}, nil
}

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Payload Length    | uint16         | 2            | Length of JSON (N)      |
| Payload           | []byte         | N            | JSON-encoded event      |
+-----------------------------------------------------------------------------+
*/

// HeaderSize is the number of bytes before the JSON payload.
const HeaderSize = 4 + 8 + 2

// Send encodes data and transmits it as a single packet.
func (p *UDPPublisher) Send(data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("UDPPublisher: encoding payload: %w", err)
	}
	if len(payload) > maxPayload {
		return fmt.Errorf("UDPPublisher: payload of %d bytes exceeds %d", len(payload), maxPayload)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sequenceNum++
	p.packetBuf.Reset()
	binary.Write(p.packetBuf, binary.BigEndian, p.sequenceNum)
	binary.Write(p.packetBuf, binary.BigEndian, time.Now().UnixNano())
	binary.Write(p.packetBuf, binary.BigEndian, uint16(len(payload)))
	p.packetBuf.Write(payload)

	return p.sender.Send(p.packetBuf.Bytes())
}

// Close closes the underlying sender.
func (p *UDPPublisher) Close() error {
	return p.sender.Close()
}

// DecodePacket splits a packet into its header fields and JSON payload.
func DecodePacket(packet []byte) (seq uint32, ts time.Time, payload []byte, err error) {
	if len(packet) < HeaderSize {
		return 0, time.Time{}, nil, fmt.Errorf("packet too short: %d bytes", len(packet))
	}
	seq = binary.BigEndian.Uint32(packet[0:4])
	ts = time.Unix(0, int64(binary.BigEndian.Uint64(packet[4:12])))
	n := int(binary.BigEndian.Uint16(packet[12:14]))
	if len(packet)-HeaderSize < n {
		return 0, time.Time{}, nil, fmt.Errorf("truncated payload: want %d bytes, have %d", n, len(packet)-HeaderSize)
	}
	return seq, ts, packet[HeaderSize : HeaderSize+n], nil
}

var _ transport.Transport = (*UDPPublisher)(nil)
