// Package ui renders gridmon's terminal output: check results and the
// Icinga host list.
//
// Colors are ANSI codes so they work on any terminal:
//
//	ColorSuccess (green)  - OK results, created hosts
//	ColorError   (red)    - problem results, failures
//	ColorWarning (yellow) - pending registrations
//	ColorMuted   (gray)   - perfdata, secondary text
//
// Use DisableColors() for monochrome output (the --no-color flag).
package ui
