//go:build vecbatch

package vectormath

// Built with the vecbatch tag the unrolled strategy is the default.
//
// Build command:
//   go build -tags vecbatch ./...
var defaultStrategy Strategy = Batched{}

// BuildStrategy names the strategy compiled in as default.
const BuildStrategy = "batched"
