package hook

// Memory patches and allocates code in the current process.
// The native implementation lives in memory_*.go; tests use a fake.
type Memory interface {
	// Read copies len(buf) bytes at addr.
	Read(addr uintptr, buf []byte) error

	// Write stores data at addr, temporarily lifting page protection and
	// flushing the instruction cache afterwards.
	Write(addr uintptr, data []byte) error

	// Alloc returns size bytes of executable memory, preferably within
	// rel32 reach of near.
	Alloc(near uintptr, size int) (uintptr, error)

	// Free releases memory returned by Alloc.
	Free(addr uintptr, size int) error

	// PageSize returns the allocation granularity.
	PageSize() int
}
