package ipp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// MaxFieldLength is the largest name or value a u16 length prefix can carry.
const MaxFieldLength = 0xFFFF

// ErrFieldTooLong is returned by Validate for a field that does not fit
// its length prefix.
var ErrFieldTooLong = errors.New("ipp: field too long")

// Request is an IPP request with a single operation-attributes group.
type Request struct {
	Operation           Op
	RequestID           uint32
	PrinterURI          string
	RequestedAttributes []string
}

// EncodeRequest builds a request for op against printerURI asking for the
// marker attributes, using DefaultRequestID.
func EncodeRequest(op Op, printerURI string) []byte {
	return Request{
		Operation:           op,
		RequestID:           DefaultRequestID,
		PrinterURI:          printerURI,
		RequestedAttributes: MarkerAttributes,
	}.Encode()
}

// Validate reports fields that Encode would have to truncate.
func (r Request) Validate() error {
	if n := len(r.PrinterURI); n > MaxFieldLength {
		return fmt.Errorf("%s: %d bytes: %w", AttrPrinterURI, n, ErrFieldTooLong)
	}
	if n := len(strings.Join(r.RequestedAttributes, ",")); n > MaxFieldLength {
		return fmt.Errorf("%s: %d bytes: %w", AttrRequestedAttributes, n, ErrFieldTooLong)
	}
	return nil
}

// Encode marshals the request. The printer URI is written as given.
// The requested attributes go out as one comma-joined keyword value.
// Fields longer than MaxFieldLength are truncated so every length prefix
// matches its payload; call Validate to reject them instead.
func (r Request) Encode() []byte {
	buf := make([]byte, 0, 160+len(r.PrinterURI))
	buf = append(buf, Version[:]...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(r.Operation))
	buf = binary.BigEndian.AppendUint32(buf, r.RequestID)

	buf = append(buf, byte(TagOperationGroup))
	buf = appendAttr(buf, TagCharset, AttrCharset, DefaultCharset)
	buf = appendAttr(buf, TagLanguage, AttrNaturalLanguage, DefaultLanguage)
	buf = appendAttr(buf, TagURI, AttrPrinterURI, r.PrinterURI)
	if len(r.RequestedAttributes) > 0 {
		buf = appendAttr(buf, TagKeyword, AttrRequestedAttributes, strings.Join(r.RequestedAttributes, ","))
	}
	buf = append(buf, byte(TagEnd))
	return buf
}

// appendAttr writes tag, u16 name length, name, u16 value length, value.
func appendAttr(buf []byte, tag Tag, name, value string) []byte {
	name = name[:min(len(name), MaxFieldLength)]
	value = value[:min(len(value), MaxFieldLength)]
	buf = append(buf, byte(tag))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(name)))
	buf = append(buf, name...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(value)))
	buf = append(buf, value...)
	return buf
}
