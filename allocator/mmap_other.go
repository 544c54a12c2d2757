//go:build !linux

package allocator

import "errors"

// MappedRegion is a byte region backed by an anonymous mmap on platforms
// that support it; on other platforms, use New with a plain make([]byte,
// ...) region instead.
type MappedRegion struct {
	bytes []byte
}

func MapAnonymous(size int) (*MappedRegion, error) {
	return nil, errors.New("allocator: mmap-backed regions are only wired on linux")
}

func MapFile(fd int, size int) (*MappedRegion, error) {
	return nil, errors.New("allocator: mmap-backed regions are only wired on linux")
}

func (m *MappedRegion) Bytes() []byte { return m.bytes }

func (m *MappedRegion) Close() error { return nil }
