// Command tubeqa runs one-shot transcript lookups, questions and summaries
// against a YouTube video from the terminal.
package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCMD().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
