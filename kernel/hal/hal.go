package hal

import (
	"bytes"
	"gopheros/device"
	"gopheros/device/tty"
	"gopheros/device/video/console"
	"gopheros/kernel/driver/ps2"
	"gopheros/kernel/driver/serial"
	"gopheros/kernel/kfmt"
	"io"
	"sort"
)

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	activeConsole  console.Device
	activeTTY      tty.Device
	activeSerial   io.Writer
	activeKeyboard *ps2.Keyboard

	// activeDrivers tracks all initialized device drivers.
	activeDrivers []device.Driver
}

var (
	devices managedDevices
	strBuf  bytes.Buffer
)

// ActiveTTY returns the currently active TTY
func ActiveTTY() tty.Device {
	return devices.activeTTY
}

// ActiveKeyboard returns the currently active PS/2 keyboard, or nil if none
// was detected.
func ActiveKeyboard() *ps2.Keyboard {
	return devices.activeKeyboard
}

// DetectHardware probes for hardware devices and initializes the appropriate
// drivers.
func DetectHardware() {
	// Get driver list and sort by detection priority
	drivers := device.DriverList()
	sort.Sort(drivers)

	probe(drivers)
}

// probe executes the probe function for each driver and invokes
// onDriverInit for each successfully initialized driver.
func probe(driverInfoList device.DriverInfoList) {
	var w = kfmt.PrefixWriter{Sink: kfmt.GetOutputSink()}

	for _, info := range driverInfoList {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(&w); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(&w, "initialized\n")
		onDriverInit(info, drv)
		devices.activeDrivers = append(devices.activeDrivers, drv)
	}
}

// onDriverInit is invoked by probe() whenever a piece of hardware is detected
// and successfully initialized.
func onDriverInit(info *device.DriverInfo, drv device.Driver) {
	switch drvImpl := drv.(type) {
	case console.Device:
		onConsoleInit(drvImpl)
	case tty.Device:
		if devices.activeTTY != nil {
			return
		}

		devices.activeTTY = drvImpl
		if devices.activeConsole != nil {
			linkTTYToConsole()
		}
	case *serial.Port:
		devices.activeSerial = drvImpl
		syncOutputSink()
	case *ps2.Keyboard:
		devices.activeKeyboard = drvImpl
	}
}

// onConsoleInit is invoked whenever a console is initialized. If this is the
// first found console it automatically becomes the active console. If an
// active TTY device is present, it is automatically linked to the console
// via a call to linkTTYToConsole.
func onConsoleInit(cons console.Device) {
	if devices.activeConsole != nil {
		return
	}

	devices.activeConsole = cons

	if devices.activeTTY != nil {
		linkTTYToConsole()
	}
}

// linkTTYToConsole connects the active TTY device to the active console device
// and syncs their contents.
func linkTTYToConsole() {
	devices.activeTTY.AttachTo(devices.activeConsole)

	// Sync terminal contents with console
	devices.activeTTY.SetState(tty.StateActive)

	syncOutputSink()
}

// syncOutputSink installs kfmt's output sink from whichever of the active
// TTY and active serial port are present, fanning out to both when both are
// available so diagnostics always reach the serial line even when the VGA
// console is unavailable (e.g. under a headless emulator).
func syncOutputSink() {
	switch {
	case devices.activeTTY != nil && devices.activeSerial != nil:
		kfmt.SetOutputSink(io.MultiWriter(devices.activeTTY, devices.activeSerial))
	case devices.activeTTY != nil:
		kfmt.SetOutputSink(devices.activeTTY)
	case devices.activeSerial != nil:
		kfmt.SetOutputSink(devices.activeSerial)
	}
}
