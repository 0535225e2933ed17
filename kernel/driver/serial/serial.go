// Package serial implements a driver for the COM1 16550-compatible UART,
// used as the kernel's secondary diagnostic output sink alongside the VGA
// text console.
package serial

import (
	"gopheros/device"
	"gopheros/kernel"
	"gopheros/kernel/cpu"
	"io"
)

// com1 is the fixed I/O base port for the first serial port. This kernel
// targets a single well-known UART; there is no ACPI/PCI enumeration of
// additional ports.
const com1 = 0x3f8

var (
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte
)

// Port implements a 16550 UART configured for 38400 baud, 8 data bits, no
// parity, one stop bit (38400-8N1).
type Port struct {
	base uint16
}

// NewPort creates a Port driving the UART at the given I/O base address.
func NewPort(base uint16) *Port {
	return &Port{base: base}
}

// DriverName implements device.Driver.
func (p *Port) DriverName() string { return "serial_16550" }

// DriverVersion implements device.Driver.
func (p *Port) DriverVersion() (uint16, uint16, uint16) { return 0, 0, 1 }

// DriverInit programs the UART for 38400-8N1, enables its FIFOs and runs it
// through a loopback self-test before switching it to normal operation.
func (p *Port) DriverInit(w io.Writer) *kernel.Error {
	portWriteByteFn(p.base+1, 0x00) // disable all interrupts
	portWriteByteFn(p.base+3, 0x80) // enable DLAB to set the baud divisor
	portWriteByteFn(p.base+0, 0x03) // divisor low byte: 38400 baud
	portWriteByteFn(p.base+1, 0x00) // divisor high byte
	portWriteByteFn(p.base+3, 0x03) // 8 bits, no parity, one stop bit
	portWriteByteFn(p.base+2, 0xc7) // enable FIFO, clear it, 14-byte threshold
	portWriteByteFn(p.base+4, 0x0b) // IRQs enabled, RTS/DSR set

	portWriteByteFn(p.base+4, 0x1e) // loopback mode, to self-test the chip
	portWriteByteFn(p.base+0, 0xae)
	if portReadByteFn(p.base+0) != 0xae {
		return &kernel.Error{Module: "serial", Message: "loopback self-test failed"}
	}

	portWriteByteFn(p.base+4, 0x0f) // normal operation: IRQs, OUT#1, OUT#2
	return nil
}

// WriteByte sends a single byte, blocking until the transmit holding
// register is empty.
func (p *Port) WriteByte(b byte) error {
	for portReadByteFn(p.base+5)&0x20 == 0 {
	}
	portWriteByteFn(p.base, b)
	return nil
}

// Write implements io.Writer by sending each byte of data in turn.
func (p *Port) Write(data []byte) (int, error) {
	for _, b := range data {
		if b == '\n' {
			p.WriteByte('\r')
		}
		p.WriteByte(b)
	}
	return len(data), nil
}

// ReadByte blocks until a byte is available and returns it.
func (p *Port) ReadByte() (byte, error) {
	for portReadByteFn(p.base+5)&0x01 == 0 {
	}
	return portReadByteFn(p.base), nil
}

// probeForCOM1 always reports the fixed COM1 UART as present; this kernel
// does not probe the ISA bus to confirm an actual 16550 exists at 0x3f8.
func probeForCOM1() device.Driver {
	return NewPort(com1)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForCOM1,
	})
}
