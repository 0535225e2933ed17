// Package early provides a Printf implementation that is safe to call during
// the earliest stages of kernel bring-up, before a console or TTY has been
// attached via kfmt.SetOutputSink. It is a thin wrapper around kfmt, whose
// Printf already buffers output in a ring buffer until a sink is attached;
// this package exists so that early boot-time call sites (the boot memory
// allocator, the paging bootstrap) can name their intent explicitly.
package early

import "gopheros/kernel/kfmt"

// Printf formats according to a format specifier and writes to the active
// kfmt output sink, or to the early ring buffer if no sink has been attached
// yet. See kfmt.Printf for the supported subset of formatting verbs.
func Printf(format string, args ...interface{}) {
	kfmt.Printf(format, args...)
}
