package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// exitCodeError ends the process with the code of a finished run.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exited with code %d", e.code)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var ece *exitCodeError
		if errors.As(err, &ece) {
			os.Exit(ece.code)
		}
		log.Error().Err(err).Msg("loadshard failed")
		os.Exit(1)
	}
}
