package model

import "time"

// Verdict 外部扫描器对单个文件的结论
type Verdict int

const (
	// VerdictNone 本轮未走到扫描环节（如稳定性检查未过）
	VerdictNone Verdict = iota
	// VerdictAccepted 扫描器输出 OK
	VerdictAccepted
	// VerdictRejected 扫描器输出 MALICIOUS
	VerdictRejected
	// VerdictIndeterminate 超时/启动失败/非零退出/其他输出，一律按拒绝处理 (fail-closed)
	VerdictIndeterminate
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccepted:
		return "ACCEPTED"
	case VerdictRejected:
		return "REJECTED"
	case VerdictIndeterminate:
		return "INDETERMINATE"
	default:
		return ""
	}
}

// Outcome 单个文件在一轮 tick 中的最终处置
type Outcome int

const (
	// OutcomeCommitted 已通过扫描并落入缓存
	OutcomeCommitted Outcome = iota
	// OutcomeRefused 被拒绝（含 INDETERMINATE），文件原地不动
	OutcomeRefused
	// OutcomeDeferred 稳定性检查未通过，下一轮 tick 重试
	OutcomeDeferred
	// OutcomeError 本轮 I/O 失败（提交失败/权限等），文件保留原位下轮重试
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "ACCEPTED_COMMITTED"
	case OutcomeRefused:
		return "REJECTED_LOGGED"
	case OutcomeDeferred:
		return "DEFERRED"
	default:
		return "ERROR"
	}
}

// InboundFile 入站目录中的一个候选文件，每轮 tick 重新枚举
type InboundFile struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// CacheEntry 缓存中的一条已接收记录，创建后不可变
type CacheEntry struct {
	Name       string
	Hash       string // sha256，用于甄别同名不同内容的碰撞
	Origin     string
	Verdict    string
	AcceptedAt time.Time
}

// MountEvent 可移动介质挂载事件，为调度器追加入站来源
type MountEvent struct {
	Action     string // "add", "remove"
	DevicePath string
	MountPoint string
	TimeStamp  time.Time
}

// AuditRecord 审计日志中的一条记录，只追加不修改
type AuditRecord struct {
	ID      string    `json:"id"`
	File    string    `json:"file"`
	Verdict string    `json:"verdict,omitempty"`
	Outcome string    `json:"outcome"`
	Detail  string    `json:"detail,omitempty"`
	Err     string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}
