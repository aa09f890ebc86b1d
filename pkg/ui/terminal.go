package ui

import (
	"fmt"
	"os"
	"strings"
)

// ASCII logo for the application
const ASCIILogo = `
     _            _ _           _       _
    | |__   ___  | (_) ___   __| | __ _| |_ __ _
    | '_ \ / _ \ | | |/ _ \ / _' |/ _' | __/ _' |
    | | | |  __/ | | | (_) | (_| | (_| | || (_| |
    |_| |_|\___| |_|_|\___/ \__,_|\__,_|\__\__,_|
        solar archive downloader
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
	Bold    = colorize("\033[1m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes. NO_COLOR
// disables colors.
func colorize(colorString string) func(string) string {
	return func(text string) string {
		if os.Getenv("NO_COLOR") != "" {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	fmt.Print(Yellow(ASCIILogo))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(os.Stderr, Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(os.Stderr, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Println(Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	fmt.Printf("%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Println(Yellow(msg + ": " + fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Println(Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	fmt.Println(Magenta(msg))
}

// PrintTable prints rows as left-aligned columns
func PrintTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	format := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			if i < len(widths) {
				parts[i] = c + strings.Repeat(" ", widths[i]-len(c))
			} else {
				parts[i] = c
			}
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	fmt.Println(Bold(format(headers)))
	for _, row := range rows {
		fmt.Println(format(row))
	}
}
