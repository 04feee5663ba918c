package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/liftcare/liftsuite/internal/liftsuitecli"
)

func main() {
	if err := liftsuitecli.Execute(os.Args[1:]); err != nil {
		if errors.Is(err, liftsuitecli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr)
			liftsuitecli.PrintUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
