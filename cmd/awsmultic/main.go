// Command awsmultic relocates an S3 object into a destination folder.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/olaaustine/awsmultic"
	"github.com/olaaustine/awsmultic/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, cli.NewRootCommand(awsmultic.New))
	stop()
	os.Exit(code)
}
