package kernel

import (
	"fmt"
	"runtime"
)

// KernelVersion identifies the instruction set and lowering rules. Any
// change to either must bump it so cached artifacts are not reused.
const KernelVersion = "1"

// BlockSize is the number of elements each body instruction processes per
// dispatch.
const BlockSize = 256

// ParallelThreshold is the loop bound at or above which a code object
// linked WithWorkers(k > 1) splits the index range across goroutines.
const ParallelThreshold = 1 << 15

// ToolchainID identifies everything besides the statements and schema that
// affects generated code. It is part of every fingerprint.
func ToolchainID() string {
	return fmt.Sprintf("stepc-kernel/%s/%s-%s/%s",
		KernelVersion, runtime.GOOS, runtime.GOARCH, runtime.Version())
}
