package syncdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Hara602/datrain/internal/fsutil"
	"github.com/Hara602/datrain/internal/sysutil"
	"go.uber.org/zap"
)

// PlaceholderName 同步盘里的探针文件，出现在云端即证明同步链路活着
const PlaceholderName = "DatRainSyncTest.txt"

// Discover 定位本机云同步目录
// 优先 OneDrive 环境变量，其次 USERPROFILE/OneDrive，最后 HOME/OneDrive
func Discover() (string, error) {
	if p := os.Getenv("OneDrive"); p != "" {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p, nil
		}
	}
	for _, base := range []string{os.Getenv("USERPROFILE"), os.Getenv("HOME")} {
		if base == "" {
			continue
		}
		candidate := filepath.Join(base, "OneDrive")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("syncdir: no sync folder found; is the sync client set up?")
}

// Export 把缓存目录里的正式条目复制进同步目录，上传交给同步客户端
// 单个文件失败只记日志，继续处理其余文件
func Export(cacheDir, syncDir string) (int, error) {
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		return 0, fmt.Errorf("read cache dir: %w", err)
	}

	copied := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		// 跳过索引库与提交中的临时文件
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		src := filepath.Join(cacheDir, entry.Name())
		dst := filepath.Join(syncDir, entry.Name())
		if _, err := fsutil.CopyPreserve(src, dst); err != nil {
			sysutil.Log.Error("Export copy failed", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		copied++
		sysutil.Log.Info("☁️ Exported to sync folder", zap.String("file", entry.Name()))
	}
	return copied, nil
}

// TouchPlaceholder 在同步目录里写探针文件
func TouchPlaceholder(syncDir string) (string, error) {
	path := filepath.Join(syncDir, PlaceholderName)
	if err := os.WriteFile(path, []byte("This is a DatRain sync test.\n"), 0o644); err != nil {
		return "", fmt.Errorf("touch placeholder: %w", err)
	}
	return path, nil
}
