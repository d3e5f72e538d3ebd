//go:build linux

package watcher

import (
	"strings"
	"sync"
	"time"

	"github.com/Hara602/datrain/internal/model"
	"github.com/Hara602/datrain/internal/sysutil"
	"github.com/pilebones/go-udev/netlink"
	"go.uber.org/zap"
)

type linuxWatcher struct {
	events chan model.MountEvent
	stop   chan struct{}
	// 在途的 handleAdd 协程，全部收尾后才能关 events
	wg sync.WaitGroup
}

func newWatcher() SourceWatcher {
	return &linuxWatcher{
		events: make(chan model.MountEvent, 10),
		stop:   make(chan struct{}),
	}
}

func (w *linuxWatcher) Start() (<-chan model.MountEvent, error) {
	// 连接 NETLINK_KOBJECT_UEVENT 监听 UDEV 事件
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, err
	}

	queue := make(chan netlink.UEvent)
	errChan := make(chan error)
	quit := conn.Monitor(queue, errChan, nil)

	go func() {
		defer conn.Close()
		for {
			select {
			case <-w.stop:
				close(quit)
				// 关掉 events 让消费方的 range 退出
				w.wg.Wait()
				close(w.events)
				return

			case <-errChan:
				// 忽略底层网络错误，继续尝试
				continue

			case uevent := <-queue:
				w.handleUdevEvent(uevent)
			}
		}
	}()
	return w.events, nil
}

func (w *linuxWatcher) Stop() {
	close(w.stop)
}

// emit 投递事件，停机时放弃而不是阻塞
func (w *linuxWatcher) emit(ev model.MountEvent) {
	select {
	case w.events <- ev:
	case <-w.stop:
	}
}

func (w *linuxWatcher) handleUdevEvent(uevent netlink.UEvent) {
	// 只关心块设备分区级事件
	if uevent.Env["SUBSYSTEM"] != "block" || uevent.Env["DEVTYPE"] != "partition" {
		return
	}
	switch uevent.Action {
	case "add":
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.handleAdd(uevent)
		}()
	case "remove":
		w.emit(model.MountEvent{
			Action:     "remove",
			DevicePath: normalizeDevName(uevent.Env["DEVNAME"]),
			TimeStamp:  time.Now(),
		})
	}
}

// normalizeDevName add 与 remove 事件的 DEVNAME 要归一，否则对不上号
func normalizeDevName(devName string) string {
	if !strings.HasPrefix(devName, "/dev") {
		devName = "/dev/" + devName
	}
	return devName
}

func (w *linuxWatcher) handleAdd(uevent netlink.UEvent) {
	devName := normalizeDevName(uevent.Env["DEVNAME"])

	// Udev 事件先于挂载完成，等挂载点出现再上报
	mountPoint := sysutil.WaitForMount(devName, 3*time.Second)
	if mountPoint == "" {
		sysutil.Log.Warn("Device detected but mount point not found (timeout)", zap.String("dev", devName))
		return
	}

	sysutil.Log.Info("✅ Removable media mounted",
		zap.String("dev", devName),
		zap.String("mount", mountPoint))

	w.emit(model.MountEvent{
		Action:     "add",
		DevicePath: devName,
		MountPoint: mountPoint,
		TimeStamp:  time.Now(),
	})
}
