// Command trdsync copies new True Colours participants and questionnaire
// responses into a REDCap project.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/roach88/trdsync/internal/cli"
)

func main() {
	// Variables already set in the environment win over .env.
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
