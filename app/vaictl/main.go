package main

import (
	"os"

	"github.com/yoockh/vaihub/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
