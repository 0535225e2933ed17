package serial

import "testing"

type fakePort struct {
	base uint16
	regs map[uint16]uint8
}

func newFakePort() *fakePort {
	return &fakePort{base: com1, regs: map[uint16]uint8{}}
}

func withFakePort(t *testing.T) *fakePort {
	t.Helper()
	fp := newFakePort()

	savedWrite := portWriteByteFn
	savedRead := portReadByteFn
	t.Cleanup(func() {
		portWriteByteFn = savedWrite
		portReadByteFn = savedRead
	})

	portWriteByteFn = func(port uint16, value uint8) { fp.regs[port] = value }
	portReadByteFn = func(port uint16) uint8 { return fp.regs[port] }

	return fp
}

func TestDriverInitProgramsUARTAndPassesLoopbackSelfTest(t *testing.T) {
	fp := withFakePort(t)
	// the loopback self-test writes 0xae to the data port and expects to
	// read it straight back; the fake port's register map already does
	// that for any value written.
	_ = fp

	p := NewPort(com1)
	if err := p.DriverInit(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp.regs[com1+4] != 0x0f {
		t.Fatalf("expected the UART to be left in normal operation mode, got %#x", fp.regs[com1+4])
	}
}

func TestDriverInitFailsWhenLoopbackSelfTestFails(t *testing.T) {
	withFakePort(t)
	// force the self-test byte to read back wrong by always returning 0.
	portReadByteFn = func(uint16) uint8 { return 0 }

	p := NewPort(com1)
	if err := p.DriverInit(nil); err == nil {
		t.Fatal("expected an error when the loopback self-test fails")
	}
}

func TestWriteByteWaitsForTransmitEmpty(t *testing.T) {
	withFakePort(t)
	portReadByteFn = func(port uint16) uint8 {
		if port == com1+5 {
			return 0x20
		}
		return 0
	}

	var written uint8
	portWriteByteFn = func(port uint16, value uint8) {
		if port == com1 {
			written = value
		}
	}

	p := NewPort(com1)
	if err := p.WriteByte('x'); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if written != 'x' {
		t.Fatalf("expected 'x' to be written to the data port, got %q", written)
	}
}

func TestWriteTranslatesNewlineToCRLF(t *testing.T) {
	withFakePort(t)
	portReadByteFn = func(port uint16) uint8 {
		if port == com1+5 {
			return 0x20
		}
		return 0
	}

	var seq []uint8
	portWriteByteFn = func(port uint16, value uint8) {
		if port == com1 {
			seq = append(seq, value)
		}
	}

	p := NewPort(com1)
	if _, err := p.Write([]byte("a\n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seq) != 3 || seq[0] != 'a' || seq[1] != '\r' || seq[2] != '\n' {
		t.Fatalf("expected a, CR, LF to be written in order, got %v", seq)
	}
}
