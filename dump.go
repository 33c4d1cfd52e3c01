package nutrimeal

import (
	"fmt"
	"os"
	"runtime"

	"github.com/davecgh/go-spew/spew"
)

// dumpConfig hides pointer addresses so profiles, whose fields are all pointers, dump the same way
// on every run.
var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	SortKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// Dump pretty-prints v to stderr prefixed with the caller's location.
func Dump(v ...any) {
	_, file, line, _ := runtime.Caller(1)
	fmt.Fprintf(os.Stderr, "%s:%d:\n%s", file, line, Sdump(v...))
}

// Sdump returns what Dump would print, without the location.
func Sdump(v ...any) string {
	return dumpConfig.Sdump(v...)
}
