package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

func success(format string, a ...any) {
	if outputJSON {
		return
	}
	green.Printf("✓ %s\n", fmt.Sprintf(format, a...))
}

func warn(format string, a ...any) {
	if outputJSON {
		return
	}
	yellow.Printf("⚠️  %s\n", fmt.Sprintf(format, a...))
}

func info(format string, a ...any) {
	if outputJSON {
		return
	}
	fmt.Printf(format+"\n", a...)
}

func detail(label string, value any) {
	if outputJSON {
		return
	}
	fmt.Printf("  %s %v\n", cyan.Sprintf("%-10s", label), value)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printError(err error) {
	red.Fprintf(os.Stderr, "✗ %v\n", err)
}
