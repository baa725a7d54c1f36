//go:build !windows && !(linux && (amd64 || 386))

package hook

import "errors"

// ErrUnsupported is returned by the native memory on platforms the engine
// cannot patch.
var ErrUnsupported = errors.New("code patching not supported on this platform")

type nativeMemory struct{}

// NativeMemory returns a Memory that refuses every operation.
func NativeMemory() Memory { return nativeMemory{} }

func (nativeMemory) PageSize() int                       { return 4096 }
func (nativeMemory) Read(uintptr, []byte) error          { return ErrUnsupported }
func (nativeMemory) Write(uintptr, []byte) error         { return ErrUnsupported }
func (nativeMemory) Alloc(uintptr, int) (uintptr, error) { return 0, ErrUnsupported }
func (nativeMemory) Free(uintptr, int) error             { return ErrUnsupported }
