package main

import (
	"fmt"
	"os"

	kinshipcmd "github.com/soundprediction/kinship/cmd/kinship"
)

func main() {
	if err := kinshipcmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
