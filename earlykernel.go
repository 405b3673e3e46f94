package newc

import "go.pdmccormick.com/newc/memiter"

// Boundary that microcode blob data is conventionally aligned to within the
// image. Older kernels needed it; the blob has to sit first in its archive for
// the padding to land between archives rather than between records.
const MicrocodeDataAlignment = 16

// The Linux kernel can load x86 microcode updates from an uncompressed archive
// placed first in the boot image. See [The Linux Microcode Loader].
//
// [The Linux Microcode Loader]: https://www.kernel.org/doc/html/latest/arch/x86/microcode.html
const (
	MicrocodeX86Path           = "kernel/x86/microcode/"
	MicrocodePath_AuthenticAMD = "kernel/x86/microcode/AuthenticAMD.bin"
	MicrocodePath_GenuineIntel = "kernel/x86/microcode/GenuineIntel.bin"
)

// Reports whether name is one of the early microcode blobs.
func IsMicrocode(name memiter.Range) bool {
	return name.EqualString(MicrocodePath_AuthenticAMD) || name.EqualString(MicrocodePath_GenuineIntel)
}
