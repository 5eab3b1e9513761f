// Package ui renders colored terminal output for the apexorm CLI.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// Message is a structured CLI message
type Message struct {
	Level       Level
	Context     string
	Problem     string
	Detail      string
	Suggestions []string
	Help        []string
	NoColor     bool
}

// Format renders m.
//
//	✗ UNKNOWN MODEL: Pst
//	   No model named "Pst" is registered.
//
//	   Did you mean: Post?
//
//	   → List models: apexorm check
func Format(m Message) string {
	var b strings.Builder

	var header, body *color.Color
	var symbol string
	switch m.Level {
	case LevelWarning:
		header, body, symbol = color.New(color.FgYellow, color.Bold), color.New(color.FgYellow), "!"
	case LevelInfo:
		header, body, symbol = color.New(color.FgCyan, color.Bold), color.New(color.FgCyan), "i"
	default:
		header, body, symbol = color.New(color.FgRed, color.Bold), color.New(color.FgRed), "✗"
	}
	hint, help := color.New(color.FgYellow), color.New(color.FgCyan)
	if m.NoColor {
		for _, c := range []*color.Color{header, body, hint, help} {
			c.DisableColor()
		}
	}

	if m.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(m.Context), m.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}
	if m.Detail != "" {
		body.Fprintf(&b, "   %s\n", m.Detail)
	}
	if len(m.Suggestions) > 0 {
		b.WriteString("\n")
		hint.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}
	if len(m.Help) > 0 {
		b.WriteString("\n")
		for _, h := range m.Help {
			help.Fprintf(&b, "   → %s\n", h)
		}
	}
	return b.String()
}

// Write writes the formatted message to w
func Write(w io.Writer, m Message) {
	fmt.Fprint(w, Format(m))
}

// Success renders a success line
func Success(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// UnknownModel reports a model name missing from the registry, suggesting
// the closest registered names.
func UnknownModel(name string, registered []string, noColor bool) string {
	return Format(Message{
		Level:       LevelError,
		Context:     "unknown model",
		Problem:     name,
		Detail:      fmt.Sprintf("No model named %q is registered.", name),
		Suggestions: FindSimilar(name, registered, nil),
		Help:        []string{"List models: apexorm check"},
		NoColor:     noColor,
	})
}

// MigrationFailed reports a failed migrate run
func MigrationFailed(err error, noColor bool) string {
	return Format(Message{
		Level:   LevelError,
		Context: "migration failed",
		Problem: err.Error(),
		Detail:  "The schema was rolled back and nothing was recorded.",
		Help: []string{
			"Inspect the DDL: apexorm sql",
			"Show SQL as it runs: apexorm migrate --verbose",
		},
		NoColor: noColor,
	})
}

// ConfigProblem reports an unusable configuration
func ConfigProblem(err error, noColor bool) string {
	return Format(Message{
		Level:   LevelError,
		Context: "configuration error",
		Problem: err.Error(),
		Help: []string{
			"View config: cat apexorm.yaml",
			"Override the database: export DATABASE_URL=...",
		},
		NoColor: noColor,
	})
}
