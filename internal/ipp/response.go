package ipp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"
)

// Decode errors.
var (
	ErrTruncated   = errors.New("ipp: truncated message")
	ErrInvalidUTF8 = errors.New("ipp: invalid UTF-8")
)

// Response is a decoded IPP response.
type Response struct {
	Version    [2]byte
	StatusCode uint16
	RequestID  uint32
	Attributes Attributes
}

// Decode parses an IPP response. Only the first attribute group is read,
// and decoding stops at the first end-of-attributes tag. Values with tags
// outside the supported set are skipped by their declared length and
// recorded as Unsupported.
//
// On error the returned Response holds everything decoded before the
// failure point.
func Decode(data []byte) (*Response, error) {
	resp := &Response{Attributes: NewAttributes()}
	if len(data) < PreambleSize {
		return resp, fmt.Errorf("preamble: %d bytes: %w", len(data), ErrTruncated)
	}
	copy(resp.Version[:], data[0:2])
	resp.StatusCode = binary.BigEndian.Uint16(data[2:4])
	resp.RequestID = binary.BigEndian.Uint32(data[4:8])

	d := decoder{data: data, pos: PreambleSize}
	if d.done() {
		return resp, nil
	}
	group, _ := d.u8()
	if Tag(group) == TagEnd {
		return resp, nil
	}

	for !d.done() {
		b, _ := d.u8()
		tag := Tag(b)
		if tag == TagEnd {
			break
		}
		name, err := d.text("name")
		if err != nil {
			return resp, err
		}
		v, err := d.value(tag)
		if err != nil {
			return resp, fmt.Errorf("attribute %q: %w", name, err)
		}
		resp.Attributes.Set(name, v)
	}
	return resp, nil
}

// DecodeAttributes decodes data and returns its attributes. Any decode
// error is logged and yields an empty mapping; partial results are
// discarded.
func DecodeAttributes(data []byte, logger *slog.Logger) Attributes {
	if logger == nil {
		logger = slog.Default()
	}
	resp, err := Decode(data)
	if err != nil {
		logger.Warn("IPP response decode failed", "err", err, "bytes", len(data))
		return NewAttributes()
	}
	logger.Debug("IPP response decoded",
		"status", fmt.Sprintf("0x%04X", resp.StatusCode),
		"request_id", resp.RequestID,
		"attributes", resp.Attributes.Len(),
	)
	return resp.Attributes
}

// decoder is a bounds-checked cursor over a response buffer.
type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) done() bool { return d.pos >= len(d.data) }

func (d *decoder) need(n int, what string) error {
	if n > len(d.data)-d.pos {
		return fmt.Errorf("%s at offset %d: need %d bytes, have %d: %w",
			what, d.pos, n, len(d.data)-d.pos, ErrTruncated)
	}
	return nil
}

func (d *decoder) u8() (byte, error) {
	if err := d.need(1, "tag"); err != nil {
		return 0, err
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) u16(what string) (int, error) {
	if err := d.need(2, what+" length"); err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return int(n), nil
}

func (d *decoder) bytes(n int, what string) ([]byte, error) {
	if err := d.need(n, what); err != nil {
		return nil, err
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// lengthPrefixed reads a u16 length followed by that many bytes.
func (d *decoder) lengthPrefixed(what string) ([]byte, error) {
	n, err := d.u16(what)
	if err != nil {
		return nil, err
	}
	return d.bytes(n, what)
}

func (d *decoder) text(what string) (string, error) {
	b, err := d.lengthPrefixed(what)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%s at offset %d: %w", what, d.pos-len(b), ErrInvalidUTF8)
	}
	return string(b), nil
}

// value decodes the value that follows an attribute name.
func (d *decoder) value(tag Tag) (Value, error) {
	switch {
	case tag.IsText():
		s, err := d.text("value")
		if err != nil {
			return nil, err
		}
		return Text{Kind: tag, Value: s}, nil

	case tag == TagEnum:
		// The declared length is ignored; enums are always 4 bytes.
		if _, err := d.u16("enum"); err != nil {
			return nil, err
		}
		b, err := d.bytes(4, "enum value")
		if err != nil {
			return nil, err
		}
		return Integer{Value: binary.BigEndian.Uint32(b)}, nil

	case tag == TagOctetString:
		b, err := d.lengthPrefixed("octet string")
		if err != nil {
			return nil, err
		}
		return Bytes{Value: append([]byte(nil), b...)}, nil

	default:
		if _, err := d.lengthPrefixed(tag.String()); err != nil {
			return nil, err
		}
		return Unsupported{Kind: tag}, nil
	}
}
