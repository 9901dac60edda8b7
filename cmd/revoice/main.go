// revoice is a video translation and dubbing service: it transcribes,
// translates, and re-voices the spoken content of a media file while
// preserving the original speakers' timbre.
package main

import (
	"fmt"
	"os"

	"github.com/jmylchreest/revoice/cmd/revoice/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
