// Package ps2 implements a driver for the PS/2 keyboard controller: a
// scancode-set-1 decoder fed from the keyboard's IRQ1 top-half, exposing
// decoded key events through a small ring buffer.
package ps2

import (
	"gopheros/device"
	"gopheros/kernel"
	"gopheros/kernel/cpu"
	"gopheros/kernel/irq"
	"io"
)

const (
	dataPort   = 0x60
	statusPort = 0x64
)

var (
	portReadByteFn    = cpu.PortReadByte
	registerHandlerFn = irq.RegisterHandler
)

// KeyEvent describes a single decoded key transition.
type KeyEvent struct {
	// Code is the decoded scancode-set-1 make code (0x01..0x58), with the
	// break (key-up) bit already stripped.
	Code uint8

	// Pressed is true for a make (key-down) event, false for a break
	// (key-up) event.
	Pressed bool
}

// eventQueueSize bounds the number of buffered, unread key events.
const eventQueueSize = 128

// Keyboard decodes scancode-set-1 bytes delivered by the IRQ1 top-half into
// KeyEvents, buffering them for later consumption by a reader (e.g. the
// monitor loop in kernel/kmain).
type Keyboard struct {
	queue [eventQueueSize]KeyEvent
	head  int
	tail  int
	count int

	// Extra (0xE0-prefixed) and Pause (0xE1-prefixed) multi-byte sequences
	// are intentionally not decoded; a lead byte of either kind is
	// consumed together with the single byte that follows it. Any later
	// bytes of a longer sequence (such as Pause) are decoded as ordinary
	// scancodes.
	pendingPrefix uint8
}

// NewKeyboard creates a Keyboard with an empty event queue.
func NewKeyboard() *Keyboard {
	return &Keyboard{}
}

// DriverName implements device.Driver.
func (k *Keyboard) DriverName() string { return "ps2_keyboard" }

// DriverVersion implements device.Driver.
func (k *Keyboard) DriverVersion() (uint16, uint16, uint16) { return 0, 0, 1 }

// DriverInit registers the IRQ1 top-half that feeds decode.
func (k *Keyboard) DriverInit(_ io.Writer) *kernel.Error {
	return registerHandlerFn(irq.Keyboard, func(_ *irq.Info, _ *irq.Guard) {
		k.handleIRQ()
	})
}

// handleIRQ is the IRQ1 top-half: it reads the pending scancode byte from
// the controller's data port and decodes it.
func (k *Keyboard) handleIRQ() {
	k.decode(portReadByteFn(dataPort))
}

// decode parses a single scancode-set-1 byte, pushing a KeyEvent onto the
// queue when byte completes one. 0xE0 and 0xE1 lead bytes open an Extra or
// Pause sequence; this decoder does not interpret either and simply
// discards the one byte that follows the lead byte, matching a known
// limitation of the source this is grounded on.
func (k *Keyboard) decode(b uint8) {
	if k.pendingPrefix != 0 {
		k.pendingPrefix = 0
		return
	}

	switch b {
	case 0xe0, 0xe1:
		k.pendingPrefix = b
		return
	}

	const breakBit = 0x80
	ev := KeyEvent{Code: b &^ breakBit, Pressed: b&breakBit == 0}
	k.push(ev)
}

// push appends ev to the queue, discarding the oldest buffered event if the
// queue is full.
func (k *Keyboard) push(ev KeyEvent) {
	if k.count == eventQueueSize {
		k.head = (k.head + 1) % eventQueueSize
		k.count--
	}
	k.queue[k.tail] = ev
	k.tail = (k.tail + 1) % eventQueueSize
	k.count++
}

// Next pops the oldest buffered KeyEvent. The second return value is false
// if the queue is empty.
func (k *Keyboard) Next() (KeyEvent, bool) {
	if k.count == 0 {
		return KeyEvent{}, false
	}
	ev := k.queue[k.head]
	k.head = (k.head + 1) % eventQueueSize
	k.count--
	return ev, true
}

// asciiTable maps a subset of scancode-set-1 make codes to their unshifted
// ASCII character: the alphanumeric, punctuation and whitespace keys a basic
// shell needs. Keys outside this table (function keys, modifiers, the
// keypad) have no ASCII representation; shift/caps-lock state is not
// tracked, matching this driver's minimal decode scope.
var asciiTable = map[uint8]byte{
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0a: '9', 0x0b: '0',
	0x0c: '-', 0x0d: '=', 0x0e: '\b', 0x0f: '\t', 0x1c: '\n', 0x39: ' ',
	0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't',
	0x15: 'y', 0x16: 'u', 0x17: 'i', 0x18: 'o', 0x19: 'p',
	0x1e: 'a', 0x1f: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g',
	0x23: 'h', 0x24: 'j', 0x25: 'k', 0x26: 'l',
	0x2c: 'z', 0x2d: 'x', 0x2e: 'c', 0x2f: 'v', 0x30: 'b',
	0x31: 'n', 0x32: 'm',
}

// ASCII returns the unshifted ASCII character for a decoded scancode, if one
// is mapped.
func ASCII(code uint8) (byte, bool) {
	ch, ok := asciiTable[code]
	return ch, ok
}

// probeForKeyboard always reports a PS/2 keyboard controller as present;
// this kernel does not query ACPI to confirm one exists.
func probeForKeyboard() device.Driver {
	return NewKeyboard()
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderDefault,
		Probe: probeForKeyboard,
	})
}
