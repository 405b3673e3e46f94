package newc

// File mode and permission bits, exactly as carried in the header. The reader
// exposes the raw value; nothing here is enforced.
type Mode uint32

const (
	Mode_FileTypeMask Mode = 0o170_000
	Mode_Socket       Mode = 0o140_000 // File type for sockets.
	Mode_Symlink      Mode = 0o120_000 // File type for symbolic links (file data is link target).
	Mode_File         Mode = 0o100_000 // File type for regular files.
	Mode_BlockDevice  Mode = 0o060_000 // File type for block devices.
	Mode_Dir          Mode = 0o040_000 // File type for directories.
	Mode_CharDevice   Mode = 0o020_000 // File type for character devices.
	Mode_FIFO         Mode = 0o010_000 // File type for named pipes or FIFO's.
	Mode_SUID         Mode = 0o004_000 // SUID bit.
	Mode_SGID         Mode = 0o002_000 // SGID bit.
	Mode_Sticky       Mode = 0o001_000 // Sticky bit.
	Mode_PermsMask    Mode = 0o000_777 // Permission bits (read/write/execute for user, group and other).
)

func (m Mode) FileType() Mode { return m & Mode_FileTypeMask }
func (m Mode) Perms() Mode    { return m & Mode_PermsMask }

func (m Mode) Socket() bool      { return m.FileType() == Mode_Socket }
func (m Mode) Symlink() bool     { return m.FileType() == Mode_Symlink }
func (m Mode) File() bool        { return m.FileType() == Mode_File }
func (m Mode) BlockDevice() bool { return m.FileType() == Mode_BlockDevice }
func (m Mode) Dir() bool         { return m.FileType() == Mode_Dir }
func (m Mode) CharDevice() bool  { return m.FileType() == Mode_CharDevice }
func (m Mode) FIFO() bool        { return m.FileType() == Mode_FIFO }
func (m Mode) SUID() bool        { return m&Mode_SUID != 0 }
func (m Mode) SGID() bool        { return m&Mode_SGID != 0 }
func (m Mode) Sticky() bool      { return m&Mode_Sticky != 0 }

// Replace the permission bits.
func (m Mode) WithPerms(perms Mode) Mode { return m&^Mode_PermsMask | perms&Mode_PermsMask }

func (m Mode) typeChar() byte {
	switch m.FileType() {
	case Mode_Dir:
		return 'd'
	case Mode_Socket:
		return 's'
	case Mode_Symlink:
		return 'l'
	case Mode_BlockDevice:
		return 'b'
	case Mode_CharDevice:
		return 'c'
	case Mode_FIFO:
		return 'p'
	}
	return '-'
}

// Formats like the first column of `ls -l`, e.g. "drwxr-xr-x".
func (m Mode) String() string {
	const rwx = "rwxrwxrwx"

	var s [10]byte
	s[0] = m.typeChar()
	for i := range rwx {
		if m&(1<<(8-i)) != 0 {
			s[i+1] = rwx[i]
		} else {
			s[i+1] = '-'
		}
	}

	// Special bits replace the execute column, as ls does
	special := func(pos int, set bool, lower, upper byte) {
		if !set {
			return
		}
		if s[pos] == '-' {
			s[pos] = upper
		} else {
			s[pos] = lower
		}
	}
	special(3, m.SUID(), 's', 'S')
	special(6, m.SGID(), 's', 'S')
	special(9, m.Sticky(), 't', 'T')

	return string(s[:])
}
