package classifier

import (
	"fmt"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
)

const RUNTIME_ORT = "ort"

// ortSession is swapped out in tests; a real session needs the onnxruntime
// shared library.
var ortSession = hugot.NewORTSession

// newSession opens a hugot session for runtime. An empty libraryPath uses
// onnxruntime's default location.
func newSession(runtime, libraryPath string) (*hugot.Session, error) {
	switch runtime {
	case "", RUNTIME_ORT:
		var opts []options.WithOption
		if libraryPath != "" {
			opts = append(opts, options.WithOnnxLibraryPath(libraryPath))
		}
		return ortSession(opts...)
	default:
		return nil, fmt.Errorf("unknown classifier runtime %q", runtime)
	}
}
