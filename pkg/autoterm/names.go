// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import (
	"errors"
	"fmt"

	"github.com/vishalkuo/bimap"
)

// ErrUnknownTemperatureSource is returned for source names outside the
// known set
var ErrUnknownTemperatureSource = errors.New("unknown temperature source")

// Temperature source option names
const (
	SourceNameInternal = "internal sensor"
	SourceNamePanel    = "panel sensor"
	SourceNameExternal = "external sensor"
	SourceNameNone     = "no automatic temperature control"
)

var sourceNames = bimap.NewBiMapFromMap(map[Source]string{
	SourceInternal: SourceNameInternal,
	SourcePanel:    SourceNamePanel,
	SourceExternal: SourceNameExternal,
	SourceNone:     SourceNameNone,
})

// SourceNames lists the option names in wire order
func SourceNames() []string {
	return []string{SourceNameInternal, SourceNamePanel, SourceNameExternal, SourceNameNone}
}

// ParseSource maps an option name to its source
func ParseSource(name string) (Source, error) {
	if s, ok := sourceNames.GetInverse(name); ok {
		return s, nil
	}
	return SourceUnset, fmt.Errorf("%w: %q", ErrUnknownTemperatureSource, name)
}

func (s Source) String() string {
	if name, ok := sourceNames.Get(s); ok {
		return name
	}
	return fmt.Sprintf("unknown (%d)", uint8(s))
}

func (o Origin) String() string {
	switch o {
	case OriginController:
		return "controller"
	case OriginHeater:
		return "heater"
	default:
		return fmt.Sprintf("0x%02X", uint8(o))
	}
}

// WaitModeName returns a short name for a wait mode byte
func WaitModeName(mode uint8) string {
	switch mode {
	case WaitModeNone:
		return "none"
	case WaitModeTempToFan:
		return "temp-to-fan"
	case WaitModeTempHold:
		return "temp-hold"
	default:
		return fmt.Sprintf("unknown (%d)", mode)
	}
}
