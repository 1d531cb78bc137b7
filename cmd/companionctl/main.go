package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/companion/internal/client/cli"
)

func main() {
	if err := cli.NewRootCmd(cli.DefaultDialer).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
