package capture

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"golang.org/x/net/bpf"
)

var (
	srcMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02}
)

func serialize(t *testing.T, l ...gopacket.SerializableLayer) []byte {
	t.Helper()

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, l...); err != nil {
		t.Fatalf("serialize: %s", err)
	}
	return buf.Bytes()
}

func ipv4Layers(vlan uint16) []gopacket.SerializableLayer {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}
	// Long enough to avoid ethernet padding, so tagged and untagged frames differ by the tag only
	payload := gopacket.Payload(make([]byte, 20))

	if vlan == 0 {
		return []gopacket.SerializableLayer{eth, ip, icmp, payload}
	}
	eth.EthernetType = layers.EthernetTypeDot1Q
	tag := &layers.Dot1Q{VLANIdentifier: vlan, Type: layers.EthernetTypeIPv4}
	return []gopacket.SerializableLayer{eth, tag, ip, icmp, payload}
}

func arpFrame(t *testing.T, vlan uint16) []byte {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	if vlan == 0 {
		return serialize(t, eth, arp)
	}
	eth.EthernetType = layers.EthernetTypeDot1Q
	return serialize(t, eth, &layers.Dot1Q{VLANIdentifier: vlan, Type: layers.EthernetTypeARP}, arp)
}

func ipv6Frame(t *testing.T) []byte {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv6}
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolNoNextHeader,
		SrcIP:      net.ParseIP("fd00::1"),
		DstIP:      net.ParseIP("fd00::2"),
	}
	return serialize(t, eth, ip)
}

func TestFilter(t *testing.T) {
	vm, err := bpf.NewVM(filterProgram())
	if err != nil {
		t.Fatalf("invalid filter: %s", err)
	}

	tests := []struct {
		name   string
		frame  []byte
		accept bool
	}{
		{"ipv4", serialize(t, ipv4Layers(0)...), true},
		{"vlan ipv4", serialize(t, ipv4Layers(100)...), true},
		{"arp", arpFrame(t, 0), false},
		{"vlan arp", arpFrame(t, 100), false},
		{"ipv6", ipv6Frame(t), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := vm.Run(tt.frame)
			if err != nil {
				t.Fatalf("run: %s", err)
			}
			if got := n > 0; got != tt.accept {
				t.Errorf("accepted = %v, want %v", got, tt.accept)
			}
		})
	}

	if _, err := assembleFilter(); err != nil {
		t.Errorf("assemble: %s", err)
	}
}

type fakeFrame struct {
	data []byte
	ci   gopacket.CaptureInfo
}

type fakeSource struct {
	sync.Mutex
	frames []fakeFrame
	err    error // returned when frames are exhausted
	closed chan struct{}
	once   sync.Once
}

func newFakeSource(err error, frames ...fakeFrame) *fakeSource {
	return &fakeSource{frames: frames, err: err, closed: make(chan struct{})}
}

func (s *fakeSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	s.Lock()
	if len(s.frames) > 0 {
		f := s.frames[0]
		s.frames = s.frames[1:]
		s.Unlock()
		return f.data, f.ci, nil
	}
	s.Unlock()

	if s.err != nil {
		return nil, gopacket.CaptureInfo{}, s.err
	}
	<-s.closed
	return nil, gopacket.CaptureInfo{}, errors.New("bad file descriptor")
}

func (s *fakeSource) Close() {
	s.once.Do(func() { close(s.closed) })
}

type received struct {
	Port  uint32
	Frame []byte
}

type recordingHandler struct {
	sync.Mutex
	got []received
}

func (h *recordingHandler) HandleUnresolvedPacket(ingressPort uint32, raw []byte) {
	h.Lock()
	defer h.Unlock()

	frame := make([]byte, len(raw))
	copy(frame, raw)
	h.got = append(h.got, received{ingressPort, frame})
}

func TestRun(t *testing.T) {
	plain := serialize(t, ipv4Layers(0)...)
	tagged := serialize(t, ipv4Layers(100)...)

	src := newFakeSource(io.EOF,
		fakeFrame{data: plain},
		// kernel stripped the tag of vlan 100
		fakeFrame{data: plain, ci: gopacket.CaptureInfo{
			AncillaryData: []interface{}{pcapgo.AncillaryVLAN{VLAN: 100}},
		}},
	)
	h := &recordingHandler{}

	if err := newCapture("tap0", 7, src, h).Run(context.Background()); err != nil {
		t.Fatalf("Run: %s", err)
	}

	want := []received{{7, plain}, {7, tagged}}
	if diff := cmp.Diff(want, h.got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestRunCancel(t *testing.T) {
	src := newFakeSource(nil)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		errc <- newCapture("tap0", 7, src, &recordingHandler{}).Run(ctx)
	}()
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run after cancel: %s", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReadError(t *testing.T) {
	readErr := errors.New("network is down")
	src := newFakeSource(readErr)

	err := newCapture("tap0", 7, src, &recordingHandler{}).Run(context.Background())
	if !errors.Is(err, readErr) {
		t.Errorf("got %v, want %v", err, readErr)
	}
}
