//go:build linux

package fsutil

import "golang.org/x/sys/unix"

// FreeBytes 返回 path 所在文件系统的剩余可用字节数
func FreeBytes(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * st.Bsize, nil
}
