package capture

import (
	"golang.org/x/net/bpf"
)

const (
	etherTypeIPv4  = 0x0800
	etherTypeDot1Q = 0x8100
	etherTypeOff   = 12
	innerTypeOff   = etherTypeOff + 4

	// Large enough for any punted frame, jumbo included
	snapLen = 65535
)

// filterProgram passes IPv4 frames, optionally 802.1Q tagged.
// Everything else stays in the kernel.
func filterProgram() []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: etherTypeOff, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv4, SkipTrue: 3},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeDot1Q, SkipFalse: 3},
		bpf.LoadAbsolute{Off: innerTypeOff, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv4, SkipFalse: 1},
		bpf.RetConstant{Val: snapLen},
		bpf.RetConstant{Val: 0},
	}
}

func assembleFilter() ([]bpf.RawInstruction, error) {
	return bpf.Assemble(filterProgram())
}
