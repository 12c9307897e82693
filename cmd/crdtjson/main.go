package main

import (
	"context"
	"os"

	"github.com/dman-os/townframe-sub000/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
