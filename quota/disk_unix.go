//go:build unix

package quota

import "golang.org/x/sys/unix"

// DiskQuota reports usage of the filesystem containing Path via statfs.
type DiskQuota struct {
	// Path is any path on the filesystem backing the durable store,
	// typically the store's database file or its directory.
	Path string
}

// Usage returns used and total bytes of the filesystem. A failed statfs
// returns ok=false so the probe degrades to a no-op.
func (d DiskQuota) Usage() (used, total uint64, ok bool) {
	var st unix.Statfs_t
	if err := unix.Statfs(d.Path, &st); err != nil {
		return 0, 0, false
	}
	bsize := uint64(st.Bsize)
	total = st.Blocks * bsize
	free := st.Bavail * bsize
	if total == 0 {
		return 0, 0, false
	}
	return total - free, total, true
}
