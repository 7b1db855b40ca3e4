// Command recall keeps flashcard decks in sync across devices.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/recall/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
