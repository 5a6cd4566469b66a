//go:build linux || darwin

package arggen

// DefaultArgMax is the fallback argv+envp size limit used when no explicit
// limit is configured (spec.md §4.2's "default: platform ARG_MAX"). The Go
// standard library exposes no portable sysconf(_SC_ARG_MAX) call, and the
// real value varies by kernel and ulimit settings, so this is a conservative
// constant below the lowest common Linux/Darwin default (2MiB) rather than a
// probed value; see DESIGN.md's Open Question decision for the rationale.
const DefaultArgMax = 1 << 20 // 1 MiB
