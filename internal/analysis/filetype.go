package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/h2non/filetype"
)

// Result 伪装检测结果，仅作为审计旁证，不替代扫描器结论
type Result struct {
	IsMasquerade bool   // 文件头与声明后缀是否不符
	RealExt      string // 根据 Magic Bytes 判定的真实类型
	DeclaredExt  string // 文件名声明的后缀
	RiskLevel    string // HIGH, MEDIUM, SAFE
	Message      string
}

// Inspector 下载文件类型检查器
type Inspector struct {
	// 规则 map 目前只读，留锁是为了后续支持动态下发规则
	aliasMap map[string]map[string]bool
	mu       sync.RWMutex
}

func NewInspector() *Inspector {
	ins := &Inspector{
		aliasMap: make(map[string]map[string]bool),
	}
	ins.initRules()
	return ins
}

// initRules 合法的"表里不一"白名单，下载目录里最常见的几类
func (t *Inspector) initRules() {
	allow := func(realType string, allowedExts ...string) {
		if _, ok := t.aliasMap[realType]; !ok {
			t.aliasMap[realType] = make(map[string]bool)
		}
		t.aliasMap[realType][realType] = true
		for _, ext := range allowedExts {
			t.aliasMap[realType][ext] = true
		}
	}

	// ZIP 家族：Office 文档、Java 包、安装包本质都是 zip
	allow("zip",
		"docx", "docm", "xlsx", "xlsm", "pptx", "pptm",
		"jar", "war", "apk",
		"odt", "ods", "odp",
		"whl", "nupkg", "crx",
	)

	// XML 家族
	allow("xml", "svg", "html", "htm", "plist", "config")

	// 媒体容器
	allow("mp4", "m4v", "mov")
	allow("ogg", "ogv", "oga")

	// PE 家族：技术上同为 PE，但仍需警惕
	allow("exe", "dll", "scr", "cpl")

	// 压缩包
	allow("gz", "tgz")
	allow("tar")
	allow("rar")
	allow("7z")
}

// Inspect 对比文件头与声明后缀
func (t *Inspector) Inspect(filePath string) (*Result, error) {
	rawExt := filepath.Ext(filePath)
	if rawExt == "" {
		// 无后缀文件无从比对，放行
		return &Result{RiskLevel: "SAFE", Message: "No extension"}, nil
	}
	declaredExt := strings.ToLower(strings.TrimPrefix(rawExt, "."))

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file failed: %w", err)
	}
	defer file.Close()

	// 262 bytes 是 filetype 库建议的读取长度
	head := make([]byte, 262)
	n, err := file.Read(head)
	if err != nil && n == 0 {
		// 空文件没有 Magic Bytes，无法判断
		return &Result{RiskLevel: "SAFE", Message: "Empty file"}, nil
	}

	kind, _ := filetype.Match(head)

	// 纯文本 (txt, json, md...) 都会落在 Unknown，默认信任
	if kind == filetype.Unknown {
		return &Result{
			RealExt:     "unknown",
			DeclaredExt: declaredExt,
			RiskLevel:   "SAFE",
			Message:     "Unknown binary signature (likely text)",
		}, nil
	}

	realExt := kind.Extension
	if realExt == declaredExt {
		return &Result{RealExt: realExt, DeclaredExt: declaredExt, RiskLevel: "SAFE"}, nil
	}

	t.mu.RLock()
	allowedMap, exists := t.aliasMap[realExt]
	t.mu.RUnlock()

	if exists && allowedMap[declaredExt] {
		return &Result{
			RealExt:     realExt,
			DeclaredExt: declaredExt,
			RiskLevel:   "SAFE",
			Message:     fmt.Sprintf("Allowed alias: %s is compatible with %s", declaredExt, realExt),
		}, nil
	}

	// 可执行文件伪装成其他格式，极度危险
	risk := "MEDIUM"
	if realExt == "exe" || realExt == "elf" || realExt == "dll" {
		risk = "HIGH"
	}

	return &Result{
		IsMasquerade: true,
		RealExt:      realExt,
		DeclaredExt:  declaredExt,
		RiskLevel:    risk,
		Message:      fmt.Sprintf("Type Mismatch! Header is '%s' but file is '%s'", realExt, declaredExt),
	}, nil
}
