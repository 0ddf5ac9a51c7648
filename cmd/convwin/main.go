// Command convwin keeps conversation windows bounded with rolling summaries.
package main

import (
	"fmt"
	"os"

	"convwin/internal/cli"
	"convwin/pkg/logger"
)

func main() {
	rootCmd := cli.NewRootCmd()

	err := rootCmd.Execute()
	_ = logger.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
