// Package ui styles command line output with lipgloss.
//
// A [Palette] colors headings and outcome kinds. [Progress] prints orchestrator progress updates
// as they arrive, and [Outcomes] and [Warnings] summarize a finished batch.
package ui
