//go:build linux

package sysutil

import (
	"bufio"
	"os"
	"strings"
	"time"
)

// WaitForMount 轮询 /proc/mounts 等待设备挂载，返回挂载点
// Udev 事件触发时文件系统往往还没挂载好，所以要等
func WaitForMount(devPath string, timeout time.Duration) string {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if mp := lookupMount(devPath); mp != "" {
			return mp
		}
		time.Sleep(100 * time.Millisecond)
	}
	return ""
}

func lookupMount(devPath string) string {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == devPath {
			return fields[1]
		}
	}
	return ""
}
