package main

import (
	"os"
)

// qc-consensus-cli reads one JSON request from stdin and writes one JSON
// response to stdout. It exposes the pure consensus functions so other
// implementations can be checked against this one.
func main() {
	serve(os.Stdin, os.Stdout)
}
