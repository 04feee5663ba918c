// Command liftsuite runs the elevator maintenance suite from the repository root.
package main

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/liftcare/liftsuite/internal/liftsuitecli"
	"github.com/liftcare/liftsuite/internal/logging"
)

func main() {
	if err := liftsuitecli.Execute(os.Args[1:]); err != nil {
		if errors.Is(err, liftsuitecli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			liftsuitecli.PrintUsage(os.Stderr)
			os.Exit(2)
		}
		logging.FromEnv().Fatal("liftsuite failed", zap.Error(err))
	}
}
