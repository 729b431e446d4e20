// Command nostrstore ingests, queries and watches a local signed-event store.
package main

import (
	"context"
	"os"

	"github.com/nostrstore/nostrstore/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
