//go:build pcap

package network

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/handcast-data/handcast/internal/monitoring"
)

// ReadPCAP replays the UDP payloads addressed to the given port out of
// a capture file, in capture order, with their capture timestamps. It
// returns how many payloads the callback accepted.
func ReadPCAP(path string, port int, fn func(ts time.Time, payload []byte) error) (int, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return 0, fmt.Errorf("open capture %s: %w", path, err)
	}
	defer handle.Close()

	if err := handle.SetBPFFilter(fmt.Sprintf("udp dst port %d", port)); err != nil {
		return 0, fmt.Errorf("capture filter: %w", err)
	}

	count := 0
	source := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range source.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if err := fn(packet.Metadata().Timestamp, udp.Payload); err != nil {
			monitoring.Verbosef("network: capture packet rejected: %v", err)
			continue
		}
		count++
	}
	return count, nil
}
