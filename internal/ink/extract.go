package ink

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/OpenPrinting/go-mfp/util/optional"

	"github.com/mzyy94/ippink/internal/ipp"
)

// colorNames maps lowercased IPP marker color tokens to display labels.
var colorNames = map[string]string{
	"black":         "黑色",
	"cyan":          "青色",
	"magenta":       "品红色",
	"yellow":        "黄色",
	"photo-black":   "照片黑",
	"gray":          "灰色",
	"photo-gray":    "照片灰",
	"light-cyan":    "浅青色",
	"light-magenta": "浅品红色",
}

// ColorName returns the display label for a color token, or the token
// itself when it is not in the table.
func ColorName(token string) string {
	if name, ok := colorNames[strings.ToLower(strings.TrimSpace(token))]; ok {
		return name
	}
	return token
}

// markerLists holds the parallel marker-* token lists.
type markerLists struct {
	colors, levels, names, types []string
}

func tokens(attrs ipp.Attributes, name string) []string {
	v, ok := attrs.Get(name)
	if !ok || v == nil {
		return nil
	}
	return v.Tokens()
}

// Extract builds cartridge records from decoded marker attributes. The
// marker-colors list drives the result: extra entries in the other lists
// are ignored, a missing level reads as 0, and a missing name or type is
// left unset. An entry whose level does not parse is logged and skipped.
func Extract(attrs ipp.Attributes, logger *slog.Logger) []Cartridge {
	if logger == nil {
		logger = slog.Default()
	}
	m := markerLists{
		colors: tokens(attrs, ipp.AttrMarkerColors),
		levels: tokens(attrs, ipp.AttrMarkerLevels),
		names:  tokens(attrs, ipp.AttrMarkerNames),
		types:  tokens(attrs, ipp.AttrMarkerTypes),
	}

	cartridges := make([]Cartridge, 0, len(m.colors))
	for i := range m.colors {
		c, err := m.cartridge(i)
		if err != nil {
			logger.Warn("skipping marker entry", "index", i, "err", err)
			continue
		}
		cartridges = append(cartridges, c)
	}
	return cartridges
}

// cartridge builds the record at index i.
func (m markerLists) cartridge(i int) (Cartridge, error) {
	token := m.colors[i]
	level := 0
	if i < len(m.levels) {
		n, err := strconv.Atoi(strings.TrimSpace(m.levels[i]))
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return Cartridge{}, fmt.Errorf("marker level %q: %w", m.levels[i], err)
		}
		level = n // saturated on ErrRange
	}
	level = ClampLevel(level)

	status := ClassifyLevel(level)
	c := Cartridge{
		Color:       strings.ToLower(strings.TrimSpace(token)),
		ColorName:   ColorName(token),
		Level:       level,
		Status:      status,
		StatusLabel: status.Label(),
	}
	if i < len(m.names) {
		c.Name = optional.New(m.names[i])
	}
	if i < len(m.types) {
		c.Type = optional.New(m.types[i])
	}
	return c, nil
}
