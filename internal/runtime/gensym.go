package runtime

import (
	"fmt"
	"sync/atomic"
)

var nameCounter atomic.Uint64

// GenName returns a fresh name derived from base, unique for the lifetime
// of the process. The counter is atomic because independent namespaces may
// be compiled concurrently and generated names must never collide across
// them.
func GenName(base string) string {
	return fmt.Sprintf("%s_%d", base, nameCounter.Add(1))
}
