package wire

import (
	"encoding/binary"
	"encoding/json"
)

// Codec encodes and decodes single Fast wire frames. Strict controls
// whether a divergent status byte is rejected.
type Codec struct {
	Strict bool
}

// NewCodec returns a Codec with strict status-byte checking enabled.
func NewCodec() *Codec { return &Codec{Strict: true} }

// Encode serializes m into a complete wire frame: 15-byte header followed
// by the JSON payload.
func (c *Codec) Encode(m *Message) ([]byte, error) {
	payload, err := marshalPayload(m)
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxPayloadLen {
		return nil, ErrOversized
	}

	crc := crc16XModem(payload)

	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = Version
	buf[1] = byte(m.Type)
	status := m.Status
	if status == 0 {
		status = m.Type
	}
	buf[2] = byte(status)
	binary.BigEndian.PutUint32(buf[3:7], m.ID)
	binary.BigEndian.PutUint32(buf[7:11], uint32(crc))
	binary.BigEndian.PutUint32(buf[11:15], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// DecodedHeader is the parsed fixed-size portion of a frame, produced
// before the payload is available (used by framing.Decoder to know how many
// more bytes to wait for).
type DecodedHeader struct {
	Version byte
	Type    Type
	Status  Type
	ID      uint32
	CRC     uint16
	BodyLen uint32
}

// DecodeHeader parses and validates the fixed 15-byte header. It does not
// validate the payload; DecodeHeader is called before enough bytes for the
// body have necessarily arrived.
func (c *Codec) DecodeHeader(hdr []byte) (*DecodedHeader, error) {
	if len(hdr) != HeaderSize {
		return nil, errStructural("short header")
	}
	if hdr[0] != Version {
		return nil, ErrBadVersion
	}
	typ := Type(hdr[1])
	if !typ.Valid() {
		return nil, ErrUnknownType
	}
	status := Type(hdr[2])
	if !status.Valid() {
		return nil, ErrUnknownType
	}
	if c.Strict && status != typ {
		return nil, ErrStatusMismatch
	}
	id := binary.BigEndian.Uint32(hdr[3:7])
	if id == 0 {
		return nil, ErrIDZero
	}
	crcField := binary.BigEndian.Uint32(hdr[7:11])
	if crcField > 0xFFFF {
		return nil, ErrCRCUpperBits
	}
	bodyLen := binary.BigEndian.Uint32(hdr[11:15])
	if bodyLen > MaxPayloadLen {
		return nil, ErrOversized
	}
	return &DecodedHeader{
		Version: hdr[0],
		Type:    typ,
		Status:  status,
		ID:      id,
		CRC:     uint16(crcField),
		BodyLen: bodyLen,
	}, nil
}

// DecodeBody validates the checksum and parses the JSON payload against
// hdr's declared type, producing a fully structured Message.
func (c *Codec) DecodeBody(hdr *DecodedHeader, body []byte) (*Message, error) {
	if crc16XModem(body) != hdr.CRC {
		return nil, ErrCRCMismatch
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, errMalformedJSON(err)
	}

	dRaw, hasD := top["d"]
	if !hasD {
		return nil, errStructural("payload missing `d` field")
	}

	var meta Meta
	if mRaw, ok := top["m"]; ok {
		if err := json.Unmarshal(mRaw, &meta); err != nil {
			return nil, errMalformedJSON(err)
		}
	}

	msg := &Message{
		Version: hdr.Version,
		Type:    hdr.Type,
		Status:  hdr.Status,
		ID:      hdr.ID,
		Meta:    meta,
	}

	switch hdr.Type {
	case TypeData, TypeEnd:
		var data []any
		if err := json.Unmarshal(dRaw, &data); err != nil {
			return nil, errStructural("`d` must be an array for DATA/END")
		}
		msg.Data = data
	case TypeError:
		var ed ErrorData
		if err := json.Unmarshal(dRaw, &ed); err != nil {
			return nil, errStructural("`d` must be an object for ERROR")
		}
		msg.Err = &ed
	default:
		return nil, ErrUnknownType
	}

	return msg, nil
}

// Decode parses a complete frame (header + body) in one call. It is a
// convenience wrapper over DecodeHeader/DecodeBody for callers that already
// have the whole frame in hand (e.g. tests); framing.Decoder uses the split
// form so it can size the body from the header first.
func (c *Codec) Decode(frame []byte) (*Message, error) {
	if len(frame) < HeaderSize {
		return nil, errStructural("frame shorter than header")
	}
	hdr, err := c.DecodeHeader(frame[:HeaderSize])
	if err != nil {
		return nil, err
	}
	body := frame[HeaderSize:]
	if uint32(len(body)) != hdr.BodyLen {
		return nil, errStructural("body length does not match header")
	}
	return c.DecodeBody(hdr, body)
}
