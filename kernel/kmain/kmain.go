// Package kmain contains the kernel's entrypoint: the only Go symbol visible
// to the boot stub, responsible for bringing up every subsystem in order and
// handing off to the scheduler.
package kmain

import (
	"gopheros/kernel"
	"gopheros/kernel/driver/ps2"
	"gopheros/kernel/fs/ustar"
	"gopheros/kernel/fs/vfs"
	"gopheros/kernel/goruntime"
	"gopheros/kernel/hal"
	"gopheros/kernel/hal/multiboot"
	"gopheros/kernel/irq"
	"gopheros/kernel/kfmt"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"gopheros/kernel/mem/pmm/allocator"
	"gopheros/kernel/mem/vmm"
	"gopheros/kernel/sched"
	"gopheros/kernel/task"
	"reflect"
	"unsafe"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// initPath is the well-known name the initramfs entry for the first
// user-mode program is looked up under.
const initPath = "init"

// rootFS is the VFS every lookup from the monitor loop and task launch goes
// through.
var rootFS vfs.VFS

// Kmain is the only Go symbol visible (exported) from the rt0 initialization
// code. It is invoked by the boot stub after the CPU has switched to long
// mode and jumped to the high-half kernel entry point, with interrupts still
// disabled and no Go runtime support beyond what goruntime.Init below
// establishes.
//
// multibootInfoPtr is the physical address of the Multiboot2 information
// structure; kernelStart/kernelEnd bound the loaded kernel image;
// kernelPageOffset is the virtual address the kernel image's physical base
// is mapped at. Kmain is not expected to return.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd, kernelPageOffset uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)
	hal.DetectHardware()

	allocator.Init(kernelStart, kernelEnd)

	var err *kernel.Error
	if err = vmm.Init(kernelPageOffset); err != nil {
		kfmt.Panic(err)
	} else if err = goruntime.Init(); err != nil {
		kfmt.Panic(err)
	}

	// Hand frame management over to the buddy allocator once vmm.Init and
	// goruntime.Init have run; until then AllocFrame is served by the boot
	// memory manager. This kernel has no permanent physical-remap window
	// covering all of RAM.
	allocator.PromoteToBuddyAllocator()

	irq.Init()
	mountInitramfs()

	sched.Init(monitorLoop)
	sched.InitSwitch()

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating it as dead code and eliminating it.
	kfmt.Panic(errKmainReturned)
}

// mountInitramfs maps the boot module the bootloader loaded alongside the
// kernel image and mounts it as a USTAR archive at the VFS root. A missing
// module is reported here and leaves rootFS unmounted; monitorLoop then
// finds no init entry to launch and goes straight to the interactive shell.
func mountInitramfs() {
	mod, ok := multiboot.GetModule()
	if !ok {
		kfmt.Printf("kmain: no boot module present, initramfs not mounted\n")
		return
	}

	modSize := int(mod.End - mod.Start)
	frame := pmm.FrameFromAddress(uintptr(mod.Start))
	pageOffset := uintptr(mod.Start) - frame.Address()

	page, err := vmm.MapRegion(frame, mem.Size(pageOffset)+mem.Size(modSize), vmm.FlagPresent)
	if err != nil {
		kfmt.Printf("kmain: failed to map initramfs: %s\n", err.Message)
		return
	}

	tape := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Data: page.Address() + pageOffset,
		Len:  modSize,
		Cap:  modSize,
	}))

	rootFS.Mount(ustar.New(tape))
	kfmt.Printf("kmain: mounted initramfs %q (%d bytes)\n", mod.CmdLine, modSize)
}

// monitorLoop is the kernel's first non-idle thread. If the initramfs
// carries an entry named "init" it is launched as the first user-mode task;
// otherwise monitorLoop falls back to a minimal interactive shell that
// echoes decoded PS/2 key events to the active TTY.
func monitorLoop() {
	kfmt.Printf("gopheros kernel ready\n")

	if f, err := rootFS.Open(initPath); err == nil {
		image := make([]byte, f.Size())
		if _, rerr := f.Read(image); rerr == nil {
			if _, launchErr := task.Launch(image); launchErr != nil {
				kfmt.Printf("kmain: failed to launch %q: %s\n", initPath, launchErr.Message)
			}
		}
		f.Close()
	}

	shell()
}

// shell polls the active PS/2 keyboard (if any) and echoes decoded
// printable characters to the active TTY, the "shell-like monitor loop"
// external collaborator this kernel boots into once a task (if any) has
// been launched.
func shell() {
	kbd := hal.ActiveKeyboard()
	for {
		if kbd == nil {
			sched.Yield()
			continue
		}
		if ev, ok := kbd.Next(); ok && ev.Pressed {
			if ch, ok := ps2.ASCII(ev.Code); ok {
				kfmt.Printf("%s", []byte{ch})
			}
		}
		sched.Yield()
	}
}
