// Package device defines the interfaces and the registry used by the HAL to
// discover and initialize hardware drivers.
package device

import (
	"gopheros/kernel"
	"io"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. Any diagnostic output
	// produced while probing or initializing the device is written to w.
	DriverInit(w io.Writer) *kernel.Error
}

// ProbeFn is a function that checks whether a particular piece of hardware
// is present and, if so, returns a Driver instance for it. A nil return
// value indicates that the hardware was not detected.
type ProbeFn func() Driver

// Detection order values used to bias the order in which probe functions
// run. Drivers that depend on another driver having already been detected
// (e.g. a TTY that needs its console) should use a later order value.
const (
	DetectOrderEarly   = 0
	DetectOrderDefault = 10
	DetectOrderLate    = 20
	DetectOrderLast    = 100
)

// DriverInfo bundles a probe function together with the order that it
// should run in relative to other registered probes.
type DriverInfo struct {
	// Order controls the relative ordering of probe invocations; lower
	// values run first.
	Order int

	// Probe is invoked by the HAL to detect and construct the driver.
	Probe ProbeFn
}

// DriverInfoList implements sort.Interface ordering entries by Order.
type DriverInfoList []*DriverInfo

func (l DriverInfoList) Len() int           { return len(l) }
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }
func (l DriverInfoList) Swap(i, j int)      { l[i], l[j] = l[j], l[i] }

// registeredDrivers holds every driver registered via RegisterDriver.
var registeredDrivers DriverInfoList

// RegisterDriver appends a driver probe to the global driver registry. It is
// typically called from a driver package's init() function.
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the list of registered driver probes.
func DriverList() DriverInfoList {
	return registeredDrivers
}
