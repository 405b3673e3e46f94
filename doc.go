// Read cpio "newc" formatted archives held in memory, such as a boot module
// loaded by firmware or a memory mapped initramfs image.
//
// The [Reader] never copies: each [Entry] hands back [memiter.Range] views of
// the filename and file data inside the caller's buffer, which must outlive
// them. Only the portable ASCII format with magic 070701 is understood. The
// reader stops at the TRAILER!!! record and ignores anything after it; see
// [Reader.Rest] for walking concatenated archives.
//
// This implementation follows the [documented kernel buffer format].
//
// [documented kernel buffer format]: https://www.kernel.org/doc/html/latest/driver-api/early-userspace/buffer-format.html
package newc
