package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/mashiike/omnillm/cli"

	//builtin adapters import
	_ "github.com/mashiike/omnillm/provider/anthropic"
	_ "github.com/mashiike/omnillm/provider/gemini"
	_ "github.com/mashiike/omnillm/provider/openai"
)

func main() {
	if code := run(context.Background()); code != 0 {
		os.Exit(code)
	}
}

func run(ctx context.Context) int {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()
	var c cli.CLI
	return c.Run(ctx)
}
