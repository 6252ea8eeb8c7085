package batch

import "github.com/creasty/defaults"

type ExecOptions struct {
	// Command is the batch runner CLI. The path of a batch descriptor is appended as the last argument.
	Command []string `default:"[\"batchRunner\"]"`

	// AuthTokenEnv is the environment variable passing the auth token to the batch runner.
	AuthTokenEnv string `default:"NCS_AUTH_TOKEN"`
}

func DefaultExecOptions() (o ExecOptions) {
	if err := defaults.Set(&o); err != nil {
		panic(err)
	}
	return
}

type LocalOptions struct {
	// Parallelism is the number of frames run at the same time.
	Parallelism int `default:"4"`

	// KeepFrameDirs keeps private worker directories of frames after the batch.
	KeepFrameDirs bool `default:"false"`
}

func DefaultLocalOptions() (o LocalOptions) {
	if err := defaults.Set(&o); err != nil {
		panic(err)
	}
	return
}
