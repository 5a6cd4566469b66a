//go:build !linux && !darwin

package arggen

// DefaultArgMax on non-Unix platforms: Windows' CreateProcess command-line
// limit (32767 UTF-16 units) is far smaller than Unix's ARG_MAX, so use a
// correspondingly smaller conservative default.
const DefaultArgMax = 32 * 1024
