// Command sispop-storage runs the storage server node.
package main

import (
	"os"

	"github.com/sispop-dev/storage/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
