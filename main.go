// omp-launcher/main.go
package main

import (
	"os"

	"github.com/faiface/mainthread"

	"omp-launcher/cli"
)

func main() {
	code := 0
	// Native dialogs must be opened from the main OS thread.
	mainthread.Run(func() {
		if err := cli.Execute(); err != nil {
			code = 1
		}
	})
	os.Exit(code)
}
