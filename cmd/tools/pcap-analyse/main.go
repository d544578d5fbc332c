//go:build pcap

package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/handcast-data/handcast/internal/monitoring"
	"github.com/handcast-data/handcast/internal/network"
)

func main() {
	cfg := parseFlags()

	if cfg.PCAPFile == "" {
		log.Fatal("Error: -pcap flag is required")
	}
	if _, err := os.Stat(cfg.PCAPFile); os.IsNotExist(err) {
		log.Fatalf("Capture not found: %s", cfg.PCAPFile)
	}

	monitoring.SetVerbose(cfg.Verbose)

	a := newAnalyzer(cfg.GapOver)
	decoded, err := network.ReadPCAP(cfg.PCAPFile, cfg.UDPPort, a.addPacket)
	if err != nil {
		log.Fatalf("Capture replay failed: %v", err)
	}
	log.Printf("Decoded %d tracking frames from %s", decoded, cfg.PCAPFile)

	result := a.result(cfg.PCAPFile, cfg.OutputJSON != "" || cfg.Verbose)
	printResults(result)

	if cfg.OutputJSON != "" {
		if err := exportJSON(result, cfg.OutputJSON); err != nil {
			log.Printf("Warning: failed to export JSON: %v", err)
		} else {
			log.Printf("Results exported to: %s", cfg.OutputJSON)
		}
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.PCAPFile, "pcap", "", "path to the capture file to analyse")
	flag.IntVar(&cfg.UDPPort, "port", network.DefaultPort, "UDP port carrying the tracking stream")
	flag.DurationVar(&cfg.GapOver, "gap", 250*time.Millisecond, "arrival gap worth flagging")
	flag.StringVar(&cfg.OutputJSON, "json", "", "write the full result as JSON to this path")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "include per-second buckets and log rejects")

	flag.Parse()

	return cfg
}
