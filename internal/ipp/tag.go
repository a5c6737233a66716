package ipp

import (
	"fmt"
	"strconv"
	"strings"
)

// Tag is the one-byte value kind that precedes every attribute on the wire.
type Tag byte

// Group delimiters.
const (
	TagOperationGroup Tag = 0x01
	TagEnd            Tag = 0x03
)

// Value tags understood by the decoder.
const (
	TagText        Tag = 0x21 // textWithoutLanguage
	TagOctetString Tag = 0x22
	TagName        Tag = 0x23 // nameWithoutLanguage
	TagEnum        Tag = 0x35 // fixed 4-byte value
	TagKeyword     Tag = 0x44
)

// Value tags only written into requests.
const (
	TagURI      Tag = 0x45
	TagCharset  Tag = 0x47
	TagLanguage Tag = 0x48
)

// IsText reports whether values of this tag are decoded as UTF-8 text.
func (t Tag) IsText() bool {
	return t == TagText || t == TagName || t == TagKeyword
}

func (t Tag) String() string {
	switch t {
	case TagOperationGroup:
		return "operation-attributes"
	case TagEnd:
		return "end-of-attributes"
	case TagText:
		return "textWithoutLanguage"
	case TagOctetString:
		return "octetString"
	case TagName:
		return "nameWithoutLanguage"
	case TagEnum:
		return "enum"
	case TagKeyword:
		return "keyword"
	case TagURI:
		return "uri"
	case TagCharset:
		return "charset"
	case TagLanguage:
		return "naturalLanguage"
	default:
		return fmt.Sprintf("unsupported(0x%02X)", byte(t))
	}
}

// Value is a decoded attribute value.
type Value interface {
	// Tag returns the wire tag the value was decoded from.
	Tag() Tag
	// String renders the value as text.
	String() string
	// Tokens splits the value into list items.
	Tokens() []string
}

// Text holds a text, name or keyword value.
type Text struct {
	Kind  Tag
	Value string
}

func (v Text) Tag() Tag         { return v.Kind }
func (v Text) String() string   { return v.Value }
func (v Text) Tokens() []string { return splitList(v.Value) }

// Integer holds an enum value.
type Integer struct {
	Value uint32
}

func (Integer) Tag() Tag           { return TagEnum }
func (v Integer) String() string   { return strconv.FormatUint(uint64(v.Value), 10) }
func (v Integer) Tokens() []string { return []string{v.String()} }

// Bytes holds an octet-string value.
type Bytes struct {
	Value []byte
}

func (Bytes) Tag() Tag           { return TagOctetString }
func (v Bytes) String() string   { return string(v.Value) }
func (v Bytes) Tokens() []string { return splitList(string(v.Value)) }

// Unsupported marks an attribute whose tag the decoder does not interpret.
// The payload is skipped, so it carries no items.
type Unsupported struct {
	Kind Tag
}

func (v Unsupported) Tag() Tag       { return v.Kind }
func (Unsupported) String() string   { return "" }
func (Unsupported) Tokens() []string { return nil }

// List holds a value that is already multi-valued. Its tag is the tag of
// the first member.
type List []Value

func (l List) Tag() Tag {
	if len(l) == 0 {
		return TagText
	}
	return l[0].Tag()
}

func (l List) String() string {
	return strings.Join(l.Tokens(), ",")
}

func (l List) Tokens() []string {
	var out []string
	for _, v := range l {
		out = append(out, v.Tokens()...)
	}
	return out
}

// splitList splits a comma-joined value. An empty value has no items.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
