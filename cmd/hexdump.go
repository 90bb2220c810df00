// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

const hexdumpWidth = 16

var (
	hexChanged = color.New(color.FgRed, color.Bold)
	hexDim     = color.New(color.FgHiBlack)
)

// hexdump writes data in offset/hex/ascii rows. Bytes flagged in mark are
// highlighted; mark may be nil or shorter than data.
func hexdump(w io.Writer, data []byte, mark []bool) {
	for row := 0; row < len(data); row += hexdumpWidth {
		end := min(row+hexdumpWidth, len(data))

		var hex, ascii strings.Builder
		for i := row; i < row+hexdumpWidth; i++ {
			if i >= end {
				hex.WriteString("   ")
				continue
			}
			b := data[i]
			cell := fmt.Sprintf("%02x ", b)
			ch := "."
			if b >= 0x20 && b < 0x7f {
				ch = string(rune(b))
			}
			if i < len(mark) && mark[i] {
				cell = hexChanged.Sprint(cell)
				ch = hexChanged.Sprint(ch)
			}
			hex.WriteString(cell)
			ascii.WriteString(ch)
		}
		fmt.Fprintf(w, "%s  %s|%s|\n", hexDim.Sprintf("%08x", row), hex.String(), ascii.String())
	}
}

// diffMask flags the bytes of b that differ from a
func diffMask(a, b []byte) []bool {
	mask := make([]bool, len(b))
	for i := range b {
		mask[i] = i >= len(a) || a[i] != b[i]
	}
	return mask
}
