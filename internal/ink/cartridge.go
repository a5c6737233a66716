package ink

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/OpenPrinting/go-mfp/util/optional"
)

// Status classifies a cartridge by its remaining level.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusEmpty
)

// Level thresholds, in percent.
const (
	EmptyBelow   = 10
	WarningBelow = 20
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusWarning:
		return "warning"
	default:
		return "ok"
	}
}

// Label returns the localized display text.
func (s Status) Label() string {
	switch s {
	case StatusEmpty:
		return "空"
	case StatusWarning:
		return "警告"
	default:
		return "正常"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch strings.ToLower(str) {
	case "ok":
		*s = StatusOK
	case "warning":
		*s = StatusWarning
	case "empty":
		*s = StatusEmpty
	default:
		return fmt.Errorf("unknown cartridge status %q", str)
	}
	return nil
}

// ClassifyLevel maps a level in [0,100] to a Status.
func ClassifyLevel(level int) Status {
	switch {
	case level < EmptyBelow:
		return StatusEmpty
	case level < WarningBelow:
		return StatusWarning
	default:
		return StatusOK
	}
}

// ClampLevel limits n to [0,100].
func ClampLevel(n int) int {
	return max(0, min(100, n))
}

// Cartridge is one printer consumable.
type Cartridge struct {
	Color       string               `json:"color"`      // lowercased color token
	ColorName   string               `json:"color_name"` // display label
	Level       int                  `json:"level"`      // percent, always in [0,100]
	Status      Status               `json:"status"`
	StatusLabel string               `json:"status_label"` // Status.Label()
	Name        optional.Val[string] `json:"name,omitempty"`
	Type        optional.Val[string] `json:"type,omitempty"`
}

// Summary returns the worst status across cartridges. An empty list is OK.
func Summary(cartridges []Cartridge) Status {
	worst := StatusOK
	for _, c := range cartridges {
		if c.Status > worst {
			worst = c.Status
		}
	}
	return worst
}
