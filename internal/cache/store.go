package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Hara602/datrain/internal/fsutil"
	"github.com/Hara602/datrain/internal/model"
	"github.com/Hara602/datrain/internal/sysutil"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// 提交用的临时文件前缀，枚举入站目录时也据此跳过
const tmpPrefix = ".tmp-"

// Store 受保护的缓存目录 + sqlite 存在性索引
// 索引是"是否已缓存"的唯一权威，Commit 是唯一的同步点
type Store struct {
	dir          string
	db           *sql.DB
	minFreeBytes int64

	// 互斥 exists-check-then-commit，避免两个 worker 同名双写
	mu sync.Mutex
}

// Open 打开（必要时创建）缓存目录并初始化索引表
func Open(dir, dbPath string, minFreeBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if dbPath == "" {
		dbPath = filepath.Join(dir, ".datrain_index.db")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// name 为主键：同名条目只接收第一份，防止后来的恶意同名文件顶替已审文件
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		name TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		origin TEXT NOT NULL,
		verdict TEXT NOT NULL,
		accepted_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &Store{dir: dir, db: db, minFreeBytes: minFreeBytes}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Dir 缓存根目录（交给外部 ACL 收权工具用）
func (s *Store) Dir() string { return s.dir }

// PathOf 某个条目在缓存目录中的落位路径
func (s *Store) PathOf(name string) string { return filepath.Join(s.dir, name) }

// Exists 查询索引，每次扫描前必须先问这里，避免重复调用扫描器
func (s *Store) Exists(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existsLocked(name)
}

func (s *Store) existsLocked(name string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM entries WHERE name = ?", name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query cache index: %w", err)
	}
	return true, nil
}

// Commit 原子提交：复制到临时名 → rename 落位 → 写索引
// 幂等：同名二次提交返回 ErrAlreadyCached，首份已审内容不被覆盖
// 任一步失败都不会留下可见的半截条目，文件留在原位下轮重试
func (s *Store) Commit(src, name, verdict string) (*model.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.existsLocked(name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, model.ErrAlreadyCached
	}

	if s.minFreeBytes > 0 {
		free, err := fsutil.FreeBytes(s.dir)
		if err == nil && free >= 0 && free < s.minFreeBytes {
			return nil, fmt.Errorf("commit %s: %w (free=%d)", name, model.ErrNoSpace, free)
		}
	}

	tmp := filepath.Join(s.dir, tmpPrefix+name)
	final := filepath.Join(s.dir, name)

	hash, n, err := fsutil.CopyHash(src, tmp)
	if err != nil {
		return nil, fmt.Errorf("commit copy failed: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("commit rename failed: %w", err)
	}

	// rename 成功后才写索引：中途崩溃最多留下孤儿文件，下轮重扫会幂等覆盖
	entry := &model.CacheEntry{
		Name:       name,
		Hash:       hash,
		Origin:     src,
		Verdict:    verdict,
		AcceptedAt: time.Now(),
	}
	_, err = s.db.Exec(
		"INSERT INTO entries(name, hash, origin, verdict, accepted_at) VALUES (?, ?, ?, ?, ?)",
		entry.Name, entry.Hash, entry.Origin, entry.Verdict, entry.AcceptedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("commit index insert failed: %w", err)
	}

	sysutil.Log.Info("💾 Cached",
		zap.String("name", name),
		zap.Int64("bytes", n),
		zap.String("hash", hash[:12]))
	return entry, nil
}

// Count 索引中的条目数
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Recent 最近接收的 n 条记录（状态页用），n 非正时返回空
func (s *Store) Recent(n int) ([]model.CacheEntry, error) {
	if n < 0 {
		n = 0
	}
	rows, err := s.db.Query(
		"SELECT name, hash, origin, verdict, accepted_at FROM entries ORDER BY accepted_at DESC LIMIT ?", n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CacheEntry
	for rows.Next() {
		var e model.CacheEntry
		var at string
		if err := rows.Scan(&e.Name, &e.Hash, &e.Origin, &e.Verdict, &at); err != nil {
			return nil, err
		}
		e.AcceptedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// IsTempName 判断是否为提交中的临时文件（入站枚举时跳过）
func IsTempName(name string) bool {
	return len(name) > len(tmpPrefix) && name[:len(tmpPrefix)] == tmpPrefix
}
