// Package ustar implements a read-only reader for the USTAR tar format used
// to encode this kernel's initramfs image.
package ustar

import (
	"gopheros/kernel"
	"gopheros/kernel/fs/vfs"
	"strconv"
	"strings"
)

// blockSize is the fixed USTAR header/record block size.
const blockSize = 512

var (
	errBadMagic = &kernel.Error{Module: "ustar", Message: "not a ustar archive"}
	errBadSize  = &kernel.Error{Module: "ustar", Message: "malformed size field"}
	errNotFound = &kernel.Error{Module: "ustar", Message: "no such file"}
)

// Entry describes a single file recorded in a USTAR archive.
type Entry struct {
	Name       string
	Size       int
	contentOff int
}

// Archive is a read-only view over a USTAR tape held entirely in memory.
// Archive itself implements vfs.FileSystem so it can be mounted directly.
type Archive struct {
	tape []byte
}

// New wraps tape, the raw bytes of a USTAR archive, for reading. It does not
// copy tape; the caller must keep it alive for the Archive's lifetime.
func New(tape []byte) *Archive {
	return &Archive{tape: tape}
}

// Lookup scans the archive from the start for an entry whose name matches
// path exactly.
func (a *Archive) Lookup(path string) (Entry, *kernel.Error) {
	off := 0
	for off+blockSize <= len(a.tape) {
		header := a.tape[off : off+blockSize]
		if isZeroBlock(header) {
			break
		}
		if string(header[257:262]) != "ustar" {
			return Entry{}, errBadMagic
		}

		name := parseCString(header[0:100])
		size, err := parseOctal(header[124:136])
		if err != nil {
			return Entry{}, err
		}

		contentOff := off + blockSize
		if name == path {
			return Entry{Name: name, Size: size, contentOff: contentOff}, nil
		}

		off = contentOff + alignUp(size, blockSize)
	}
	return Entry{}, errNotFound
}

// Read copies up to len(buf) bytes of e's content starting at offset into
// buf, returning the number of bytes copied.
func (a *Archive) Read(e Entry, offset int, buf []byte) int {
	if offset >= e.Size {
		return 0
	}
	end := e.contentOff + e.Size
	start := e.contentOff + offset
	return copy(buf, a.tape[start:end])
}

// node adapts an Entry looked up from an Archive into a vfs.INode.
type node struct {
	archive *Archive
	entry   Entry
}

func (n *node) Read(offset int, buf []byte) (int, *kernel.Error) {
	return n.archive.Read(n.entry, offset, buf), nil
}

func (n *node) Size() int { return n.entry.Size }

// Resolve implements vfs.FileSystem, letting an *Archive be mounted directly
// into a vfs.VFS.
func (a *Archive) Resolve(path string) (vfs.INode, bool) {
	e, err := a.Lookup(path)
	if err != nil {
		return nil, false
	}
	return &node{archive: a, entry: e}, true
}

func isZeroBlock(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// parseCString returns the leading NUL-terminated string within b.
func parseCString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// parseOctal decodes a NUL/space-padded octal numeric field, the format
// USTAR uses for the size, mode, uid, gid, mtime and checksum header fields.
func parseOctal(b []byte) (int, *kernel.Error) {
	s := strings.TrimSpace(parseCString(b))
	if s == "" {
		return 0, nil
	}
	v, convErr := strconv.ParseInt(s, 8, 64)
	if convErr != nil {
		return 0, errBadSize
	}
	return int(v), nil
}

func alignUp(v, align int) int {
	return (v + align - 1) &^ (align - 1)
}
