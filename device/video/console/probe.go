package console

import (
	"gopheros/kernel/cpu"
	"gopheros/kernel/hal/multiboot"
	"gopheros/kernel/mem/vmm"
)

var (
	getFramebufferInfoFn = multiboot.GetFramebufferInfo
	mapRegionFn          = vmm.MapRegion
	portWriteByteFn      = cpu.PortWriteByte
)
