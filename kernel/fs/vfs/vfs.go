// Package vfs implements a minimal read-only virtual filesystem facade over
// a single mounted backend, the interface kernel/fs/ustar's initramfs reader
// is exposed through.
package vfs

import "gopheros/kernel"

// INode is a read-only file backed by a FileSystem.
type INode interface {
	// Read copies up to len(buf) bytes of the file's content starting at
	// offset into buf, returning the number of bytes copied.
	Read(offset int, buf []byte) (int, *kernel.Error)

	// Size returns the file's total size in bytes.
	Size() int
}

// FileSystem is implemented by filesystem backends that can be mounted into
// a VFS.
type FileSystem interface {
	// Resolve looks up path, returning its INode. The second return value
	// is false if no file exists at path.
	Resolve(path string) (INode, bool)
}

var (
	errNoMount  = &kernel.Error{Module: "vfs", Message: "no filesystem mounted"}
	errNotFound = &kernel.Error{Module: "vfs", Message: "no such file"}
)

// VFS is a minimal read-only virtual filesystem. Only a single filesystem
// may be mounted, at "/" — this kernel boots a single initramfs image and
// has no need for the source's general mount-point list.
type VFS struct {
	fs FileSystem
}

// Mount installs fs as the root filesystem.
func (v *VFS) Mount(fs FileSystem) {
	v.fs = fs
}

// Resolve looks up path against the mounted filesystem.
func (v *VFS) Resolve(path string) (INode, *kernel.Error) {
	if v.fs == nil {
		return nil, errNoMount
	}
	inode, ok := v.fs.Resolve(path)
	if !ok {
		return nil, errNotFound
	}
	return inode, nil
}

// File is a per-task open file handle: an inode plus the read offset into
// it, the same role the source's File struct fills for a task's open files.
type File struct {
	inode INode
	pos   int
}

// Open resolves path and returns a File positioned at its start.
func (v *VFS) Open(path string) (*File, *kernel.Error) {
	inode, err := v.Resolve(path)
	if err != nil {
		return nil, err
	}
	return &File{inode: inode}, nil
}

// Read reads the next len(buf) bytes from the file, advancing its offset by
// the number of bytes actually read.
func (f *File) Read(buf []byte) (int, *kernel.Error) {
	n, err := f.inode.Read(f.pos, buf)
	if err != nil {
		return 0, err
	}
	f.pos += n
	return n, nil
}

// Size returns the underlying file's total size in bytes.
func (f *File) Size() int {
	return f.inode.Size()
}

// Close releases the file handle. Since every INode in this kernel is a
// read-only view over memory already owned by the mounted filesystem, there
// is nothing to release.
func (f *File) Close() {}
