//go:build !linux

package fsutil

// FreeBytes 非 Linux 平台暂不支持，返回 -1 表示未知
func FreeBytes(path string) (int64, error) {
	return -1, nil
}
