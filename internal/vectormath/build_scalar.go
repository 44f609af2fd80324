//go:build !vecbatch

package vectormath

// Built without the vecbatch tag the element-by-element strategy is the default.
//
// Build command:
//   go build ./...
var defaultStrategy Strategy = Scalar{}

// BuildStrategy names the strategy compiled in as default.
const BuildStrategy = "scalar"
