// capture reads frames the virtual switch punts for unknown destinations
// and hands them to the on-demand engine
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkommoju/alcor-control-agent/internal/logger"
	"github.com/pkommoju/alcor-control-agent/pkg/netcfg"
	"golang.org/x/sys/unix"
)

const pkgName = "Capture. "

// Handler consumes captured frames. Frame buffer may be reused after return.
type Handler interface {
	HandleUnresolvedPacket(ingressPort uint32, raw []byte)
}

type packetSource interface {
	gopacket.PacketDataSource
	Close()
}

type Capture struct {
	ifname  string
	ifindex uint32
	src     packetSource
	handler Handler
	buf     []byte
}

// ethernetHandle adapts pcapgo handle Close signature
type ethernetHandle struct {
	*pcapgo.EthernetHandle
}

func (h ethernetHandle) Close() {
	h.EthernetHandle.Close()
}

// Open starts AF_PACKET capture on interface `ifname`
func Open(ifname string, h Handler) (*Capture, error) {
	idx, err := netcfg.InterfaceIndex(ifname)
	if err != nil {
		return nil, err
	}

	handle, err := pcapgo.NewEthernetHandle(ifname)
	if err != nil {
		return nil, fmt.Errorf("capture on %s: %w", ifname, err)
	}

	filter, err := assembleFilter()
	if err == nil {
		err = handle.SetBPF(filter)
	}
	if err == nil {
		err = handle.SetCaptureLength(snapLen)
	}
	if err != nil {
		handle.Close()
		return nil, fmt.Errorf("capture on %s: %w", ifname, err)
	}

	return newCapture(ifname, uint32(idx), ethernetHandle{handle}, h), nil
}

func newCapture(ifname string, ifindex uint32, src packetSource, h Handler) *Capture {
	return &Capture{
		ifname:  ifname,
		ifindex: ifindex,
		src:     src,
		handler: h,
	}
}

func (c *Capture) Name() string {
	return "CAPTURE_" + c.ifname
}

// Run passes frames to the handler until ctx is cancelled or the source ends
func (c *Capture) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			// Unblocks pending read
			c.src.Close()
		case <-stop:
		}
	}()

	logger.Info().Println(pkgName, "capturing on", c.ifname, "port", c.ifindex)
	for {
		data, ci, err := c.src.ReadPacketData()
		switch {
		case err == nil:
		case ctx.Err() != nil, errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, unix.EINTR), errors.Is(err, unix.EAGAIN):
			continue
		default:
			return fmt.Errorf("capture on %s: %w", c.ifname, err)
		}

		c.handler.HandleUnresolvedPacket(c.ifindex, c.restoreVlan(data, ci))
	}
}

// restoreVlan puts back 802.1Q tag the kernel stripped on receive,
// so the segment is part of the frame as the switch saw it.
func (c *Capture) restoreVlan(data []byte, ci gopacket.CaptureInfo) []byte {
	var vlan *pcapgo.AncillaryVLAN
	for _, a := range ci.AncillaryData {
		if v, ok := a.(pcapgo.AncillaryVLAN); ok {
			vlan = &v
			break
		}
	}
	if vlan == nil || len(data) < etherTypeOff {
		return data
	}

	size := len(data) + 4
	if cap(c.buf) < size {
		c.buf = make([]byte, size)
	}
	frame := c.buf[:size]

	copy(frame, data[:etherTypeOff])
	frame[etherTypeOff] = etherTypeDot1Q >> 8
	frame[etherTypeOff+1] = etherTypeDot1Q & 0xff
	frame[etherTypeOff+2] = byte(vlan.VLAN>>8) & 0x0f
	frame[etherTypeOff+3] = byte(vlan.VLAN)
	copy(frame[innerTypeOff:], data[etherTypeOff:])

	return frame
}
