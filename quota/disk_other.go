//go:build !unix

package quota

// DiskQuota reports usage of the filesystem containing Path. On platforms
// without statfs support the probe always reports ok=false, leaving the
// configured budget as the only enforced limit.
type DiskQuota struct {
	Path string
}

// Usage reports ok=false on unsupported platforms.
func (d DiskQuota) Usage() (used, total uint64, ok bool) {
	return 0, 0, false
}
