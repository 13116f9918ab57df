package main

import (
	"os"

	"github.com/dl-alexandre/batfiles/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
