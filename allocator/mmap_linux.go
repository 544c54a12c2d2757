//go:build linux

package allocator

import "golang.org/x/sys/unix"

// MappedRegion is a byte region backed by an anonymous (or file-backed, if
// fd >= 0) mmap, so that it can be shared between processes.
type MappedRegion struct {
	bytes []byte
}

// MapAnonymous creates a new anonymous, shared mmap of size bytes, usable
// by New/Open and inheritable by forked children.
func MapAnonymous(size int) (*MappedRegion, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	return &MappedRegion{bytes: b}, nil
}

// MapFile maps the given file descriptor's first size bytes, for
// persistent or cross-process regions backed by a real file.
func MapFile(fd int, size int) (*MappedRegion, error) {
	b, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &MappedRegion{bytes: b}, nil
}

// Bytes returns the mapped region for use with New/Open.
func (m *MappedRegion) Bytes() []byte { return m.bytes }

// Close unmaps the region.
func (m *MappedRegion) Close() error {
	return unix.Munmap(m.bytes)
}
