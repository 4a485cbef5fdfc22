// Package main is the entry point of the imago server.
// It sets up and starts the server by calling initialization functions from the internal package.
package main

import (
	"server-imago/internal"
)

func main() {
	internal.Init()
}
