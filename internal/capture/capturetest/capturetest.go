// Package capturetest builds pcap fixtures for tests.
package capturetest

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

// Datagram is one UDP datagram to be written to a capture.
type Datagram struct {
	At      time.Time
	Dst     string
	Port    uint16
	Payload []byte
}

// RTP marshals a minimal RTP packet.
func RTP(t testing.TB, seq uint16, ts uint32, marker bool) []byte {
	t.Helper()
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           0xdecafbad,
		},
		Payload: make([]byte, 32),
	}
	data, err := pkt.Marshal()
	require.NoError(t, err)
	return data
}

// EncodeFrame wraps d in Ethernet, IPv4 and UDP headers.
func EncodeFrame(t testing.TB, d Datagram) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x01, 0x00, 0x5e, 0x01, 0x01, 0x01},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP("10.0.0.1").To4(),
		DstIP:    net.ParseIP(d.Dst).To4(),
	}
	udp := &layers.UDP{
		SrcPort: 40000,
		DstPort: layers.UDPPort(d.Port),
	}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(d.Payload)))
	return buf.Bytes()
}

// WritePcap writes datagrams to a new pcap file in a temporary directory
// and returns its path. Timestamps are stored with microsecond resolution.
func WritePcap(t testing.TB, datagrams []Datagram) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stream.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for _, d := range datagrams {
		frame := EncodeFrame(t, d)
		ci := gopacket.CaptureInfo{
			Timestamp:     d.At,
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	return path
}

// PacedStream returns a 25 Hz stream of frames with packetsPerFrame
// packets each, preceded by one marker packet. Every frame starts on its
// alignment point and sends one packet per read slot, so the buffer never
// holds more than one packet.
func PacedStream(t testing.TB, base time.Time, frames, packetsPerFrame int, dst string, port uint16) []Datagram {
	t.Helper()
	period := 40 * time.Millisecond
	// 1/25 s * 1080/1125 / packetsPerFrame
	spacing := period * 1080 / 1125 / time.Duration(packetsPerFrame)

	var seq uint16
	var ts uint32
	out := []Datagram{{At: base.Add(-time.Millisecond), Dst: dst, Port: port, Payload: RTP(t, seq, ts, true)}}
	for k := 0; k < frames; k++ {
		ts += 3600
		start := base.Add(time.Duration(k) * period)
		for j := 0; j < packetsPerFrame; j++ {
			seq++
			out = append(out, Datagram{
				At:      start.Add(time.Duration(j) * spacing),
				Dst:     dst,
				Port:    port,
				Payload: RTP(t, seq, ts, j == packetsPerFrame-1),
			})
		}
	}
	return out
}
