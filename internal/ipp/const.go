package ipp

// Protocol version sent in every request (IPP/2.1).
var Version = [2]byte{0x02, 0x01}

// Op is an IPP operation id.
type Op uint16

// Operations.
const (
	OpGetPrinterAttributes Op = 0x000B
)

// DefaultRequestID is used when the caller does not correlate requests.
const DefaultRequestID uint32 = 1

// PreambleSize is the fixed response header: version(2) + status(2) + request id(4).
const PreambleSize = 8

// Operation attribute names and values written into requests.
const (
	AttrCharset             = "attributes-charset"
	AttrNaturalLanguage     = "attributes-natural-language"
	AttrPrinterURI          = "printer-uri"
	AttrRequestedAttributes = "requested-attributes"

	DefaultCharset  = "utf-8"
	DefaultLanguage = "en-us"
)

// Marker attribute names describing printer consumables.
const (
	AttrMarkerColors = "marker-colors"
	AttrMarkerLevels = "marker-levels"
	AttrMarkerNames  = "marker-names"
	AttrMarkerTypes  = "marker-types"
)

// MarkerAttributes is the fixed requested-attributes list.
var MarkerAttributes = []string{
	AttrMarkerColors,
	AttrMarkerLevels,
	AttrMarkerNames,
	AttrMarkerTypes,
}

// ContentType is the media type of IPP message bodies.
const ContentType = "application/ipp"
