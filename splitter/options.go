package splitter

import "github.com/creasty/defaults"

type Options struct {
	// BufferSize is the size of read and write buffers. Rows longer than it are still
	// handled as a whole.
	BufferSize int `default:"65536"`

	// MarkerSuffix is appended to ".<filename>" to name the sidecar recording an applied split.
	MarkerSuffix string `default:".loadshard"`

	// ExcludeOnFailure removes a file whose split failed, so that the load tool
	// never reads a file in an unknown state.
	ExcludeOnFailure bool `default:"true"`
}

func DefaultOptions() (o Options) {
	if err := defaults.Set(&o); err != nil {
		panic(err)
	}
	return
}
