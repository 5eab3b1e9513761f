package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Table renders aligned columns under a header
type Table struct {
	w       io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// NewTable creates a table with the given headers
func NewTable(w io.Writer, noColor bool, headers ...string) *Table {
	return &Table{w: w, headers: headers, noColor: noColor}
}

// AddRow appends a row. Missing cells render empty.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render writes the table
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = width(h)
	}
	for _, row := range t.rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if n := width(row[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}

	head := color.New(color.Bold, color.FgCyan)
	rule := color.New(color.FgHiBlack)
	if t.noColor {
		head.DisableColor()
		rule.DisableColor()
	}

	for i, h := range t.headers {
		head.Fprint(t.w, pad(h, widths[i], i == len(widths)-1))
		if i < len(widths)-1 {
			fmt.Fprint(t.w, "  ")
		}
	}
	fmt.Fprintln(t.w)
	for i, n := range widths {
		rule.Fprint(t.w, strings.Repeat("─", n))
		if i < len(widths)-1 {
			rule.Fprint(t.w, "  ")
		}
	}
	fmt.Fprintln(t.w)

	for _, row := range t.rows {
		for i := range widths {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			fmt.Fprint(t.w, pad(cell, widths[i], i == len(widths)-1))
			if i < len(widths)-1 {
				fmt.Fprint(t.w, "  ")
			}
		}
		fmt.Fprintln(t.w)
	}
}

// KeyValues renders "key: value" lines with aligned values
type KeyValues struct {
	w       io.Writer
	keys    []string
	values  []string
	noColor bool
}

// NewKeyValues creates an empty key-value block
func NewKeyValues(w io.Writer, noColor bool) *KeyValues {
	return &KeyValues{w: w, noColor: noColor}
}

// Add appends a pair
func (kv *KeyValues) Add(key, value string) {
	kv.keys = append(kv.keys, key)
	kv.values = append(kv.values, value)
}

// Render writes the block
func (kv *KeyValues) Render() {
	n := 0
	for _, k := range kv.keys {
		if w := width(k); w > n {
			n = w
		}
	}
	cyan := color.New(color.FgCyan)
	if kv.noColor {
		cyan.DisableColor()
	}
	for i, k := range kv.keys {
		cyan.Fprint(kv.w, pad(k+":", n+1, false))
		fmt.Fprintf(kv.w, " %s\n", kv.values[i])
	}
}

// Header writes a bold title underlined to its width
func Header(w io.Writer, title string, noColor bool) {
	bold := color.New(color.Bold, color.FgCyan)
	rule := color.New(color.FgHiBlack)
	if noColor {
		bold.DisableColor()
		rule.DisableColor()
	}
	bold.Fprintln(w, title)
	rule.Fprintln(w, strings.Repeat("─", width(title)))
}

func width(s string) int {
	return utf8.RuneCountInString(s)
}

// pad right-pads s to n runes. The last column is not padded.
func pad(s string, n int, last bool) string {
	if last || width(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-width(s))
}
