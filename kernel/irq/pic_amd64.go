package irq

import "gopheros/kernel/cpu"

// Legacy 8259 PIC ports and commands.
const (
	picMasterCommand = 0x20
	picMasterData    = 0x21
	picSlaveCommand  = 0xA0
	picSlaveData     = 0xA1

	picInitSequence = 0x11 // ICW1: edge triggered, cascade mode, expect ICW4
	picMode8086     = 0x01 // ICW4: 80x86 mode
	picEOI          = 0x20

	// vectorBase is the first vector the master PIC is remapped to.
	// IRQ 0..7 land on vectorBase..vectorBase+7.
	vectorBase = 32

	// slaveCascadeLine is the IRQ line the slave PIC is wired to on the
	// master controller.
	slaveCascadeLine = 4
	slaveCascadeID   = 2

	maskAll = 0xFF

	// irqTimer and irqKeyboard are the only two lines left unmasked by
	// remapPIC; every other IRQ is masked until a driver unmasks it.
	irqTimer    = 0
	irqKeyboard = 1
)

var (
	portWriteFn = cpu.PortWriteByte
	portReadFn  = cpu.PortReadByte
)

// remapPIC reassigns the master and slave 8259 controllers from their power
// on vectors (0..15, which overlap the CPU exception vectors) to 32..47, then
// masks every line except the timer and the keyboard.
func remapPIC() {
	masterMask := portReadFn(picMasterData)
	slaveMask := portReadFn(picSlaveData)

	portWriteFn(picMasterCommand, picInitSequence)
	portWriteFn(picSlaveCommand, picInitSequence)
	portWriteFn(picMasterData, vectorBase)
	portWriteFn(picSlaveData, vectorBase+8)
	portWriteFn(picMasterData, 1<<slaveCascadeLine)
	portWriteFn(picSlaveData, slaveCascadeID)
	portWriteFn(picMasterData, picMode8086)
	portWriteFn(picSlaveData, picMode8086)

	portWriteFn(picMasterData, masterMask)
	portWriteFn(picSlaveData, slaveMask)

	maskAllLines()
	Unmask(irqTimer)
	Unmask(irqKeyboard)
}

// maskAllLines disables every IRQ line on both controllers.
func maskAllLines() {
	portWriteFn(picMasterData, maskAll)
	portWriteFn(picSlaveData, maskAll)
}

// Mask disables delivery of the given (post-remap) IRQ line. Invalid lines
// are silently ignored.
func Mask(line uint8) {
	if line > 15 {
		return
	}

	port := picMasterData
	if line >= 8 {
		port = picSlaveData
		line -= 8
	}

	portWriteFn(port, portReadFn(port)|(1<<line))
}

// Unmask enables delivery of the given (post-remap) IRQ line. Invalid lines
// are silently ignored.
func Unmask(line uint8) {
	if line > 15 {
		return
	}

	port := picMasterData
	if line >= 8 {
		port = picSlaveData
		line -= 8
	}

	portWriteFn(port, portReadFn(port)&^(1<<line))
}

// sendEOI signals end-of-interrupt for the controller(s) that delivered
// vector. Interrupts originating on the slave controller also require an EOI
// to be sent to the master (cascade line).
func sendEOI(vector uint8) {
	if vector >= vectorBase+8 {
		portWriteFn(picSlaveCommand, picEOI)
	}

	portWriteFn(picMasterCommand, picEOI)
}
