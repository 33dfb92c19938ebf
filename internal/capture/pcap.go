package capture

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pion/rtp"

	"github.com/zsiec/vrx/internal/logger"
)

// pcapngMagic is the block type of a pcapng Section Header Block.
var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// Filter selects the packets of one RTP stream out of a capture.
type Filter struct {
	// Group is the destination (multicast) address. Nil accepts any.
	Group net.IP
	// Port is the destination UDP port decoded as RTP. Zero accepts any.
	Port uint16
}

func (f Filter) String() string {
	group := "*"
	if f.Group != nil {
		group = f.Group.String()
	}
	port := "*"
	if f.Port != 0 {
		port = fmt.Sprint(f.Port)
	}
	return group + ":" + port
}

// ReadStats counts what a PcapReader saw.
type ReadStats struct {
	Frames   uint64 // link-layer frames read
	Matched  uint64 // UDP datagrams passing the filter
	Records  uint64 // valid RTP packets emitted
	NonRTP   uint64 // matched datagrams that failed RTP decoding
	Filtered uint64 // frames dropped by the filter or lacking IP/UDP
}

// PcapSource reads RTP records from a pcap or pcapng file.
type PcapSource struct {
	path   string
	filter Filter
	logger logger.Logger
}

// NewPcapSource creates a replayable source over the capture file at path.
func NewPcapSource(path string, filter Filter, log logger.Logger) *PcapSource {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &PcapSource{
		path:   path,
		filter: filter,
		logger: log.WithFields(map[string]interface{}{
			"capture": path,
			"filter":  filter.String(),
		}),
	}
}

// Name implements Source
func (s *PcapSource) Name() string {
	return s.path
}

// Filter returns the stream filter applied to the capture.
func (s *PcapSource) Filter() Filter {
	return s.filter
}

// Open implements Source
func (s *PcapSource) Open() (Reader, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}

	r, err := NewPcapReader(f, s.filter, s.logger)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// packetDataSource is implemented by both pcapgo.Reader and pcapgo.NgReader.
type packetDataSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// PcapReader decodes RTP records out of a capture stream.
type PcapReader struct {
	src    packetDataSource
	filter Filter
	logger logger.Logger
	closer io.Closer
	stats  ReadStats
}

// NewPcapReader detects the capture format of r and prepares to decode it.
func NewPcapReader(r io.Reader, filter Filter, log logger.Logger) (*PcapReader, error) {
	if log == nil {
		log = logger.NewNullLogger()
	}

	br := bufio.NewReader(r)
	magic, err := br.Peek(len(pcapngMagic))
	if err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}

	var src packetDataSource
	if bytes.Equal(magic, pcapngMagic) {
		src, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, fmt.Errorf("unsupported capture format: %w", err)
	}

	log.WithField("link_type", src.LinkType().String()).Debug("Capture opened")

	return &PcapReader{
		src:    src,
		filter: filter,
		logger: log,
	}, nil
}

// Next implements Reader
func (r *PcapReader) Next() (Record, error) {
	for {
		data, ci, err := r.src.ReadPacketData()
		if err == io.EOF {
			r.logger.WithFields(map[string]interface{}{
				"frames":   r.stats.Frames,
				"records":  r.stats.Records,
				"non_rtp":  r.stats.NonRTP,
				"filtered": r.stats.Filtered,
			}).Debug("Capture exhausted")
			return Record{}, io.EOF
		}
		if err != nil {
			return Record{}, fmt.Errorf("failed to read packet %d: %w", r.stats.Frames+1, err)
		}
		r.stats.Frames++

		packet := gopacket.NewPacket(data, r.src.LinkType(), gopacket.DecodeOptions{Lazy: true})

		dst, payload, ok := r.match(packet)
		if !ok {
			r.stats.Filtered++
			continue
		}
		r.stats.Matched++

		var pkt rtp.Packet
		if err := pkt.Unmarshal(payload); err != nil || pkt.Version != 2 {
			r.stats.NonRTP++
			continue
		}
		r.stats.Records++

		return Record{
			CaptureTime:    ci.Timestamp,
			SequenceNumber: pkt.SequenceNumber,
			Timestamp:      pkt.Timestamp,
			Marker:         pkt.Marker,
			SSRC:           pkt.SSRC,
			PayloadType:    pkt.PayloadType,
			Destination:    dst,
		}, nil
	}
}

// match applies the filter and returns the destination and UDP payload.
func (r *PcapReader) match(packet gopacket.Packet) (net.IP, []byte, bool) {
	var dst net.IP
	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		dst = ip.DstIP
	case *layers.IPv6:
		dst = ip.DstIP
	default:
		return nil, nil, false
	}

	udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok {
		return nil, nil, false
	}

	if r.filter.Group != nil && !r.filter.Group.Equal(dst) {
		return nil, nil, false
	}
	if r.filter.Port != 0 && uint16(udp.DstPort) != r.filter.Port {
		return nil, nil, false
	}

	return dst, udp.Payload, true
}

// Stats returns counters accumulated so far.
func (r *PcapReader) Stats() ReadStats {
	return r.stats
}

// Close implements Reader
func (r *PcapReader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
