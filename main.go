package main

import (
	"github.com/manifest-network/chainguard/cmd/chainguard"
)

func main() {
	chainguard.Execute()
}
