//go:build !unix

package main

import "os"

var stopSignals = map[string]os.Signal{
	"SIGINT": os.Interrupt,
}
