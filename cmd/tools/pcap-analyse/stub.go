//go:build !pcap

package main

import (
	"fmt"
	"os"

	"github.com/handcast-data/handcast/internal/network"
)

func main() {
	fmt.Fprintln(os.Stderr, network.ErrPCAPDisabled)
	os.Exit(1)
}
