package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// PE 头 (MZ) 伪装成文本文件 → 高危
func TestInspectExecutableMasquerade(t *testing.T) {
	ins := NewInspector()
	pe := append([]byte{0x4D, 0x5A}, make([]byte, 64)...)

	res, err := ins.Inspect(writeFile(t, "invoice.txt", pe))
	require.NoError(t, err)
	assert.True(t, res.IsMasquerade)
	assert.Equal(t, "HIGH", res.RiskLevel)
	assert.Equal(t, "exe", res.RealExt)
	assert.Equal(t, "txt", res.DeclaredExt)
}

// docx 本质是 zip，在白名单内 → 安全
func TestInspectZipAliasAllowed(t *testing.T) {
	ins := NewInspector()
	zip := append([]byte{0x50, 0x4B, 0x03, 0x04}, make([]byte, 64)...)

	res, err := ins.Inspect(writeFile(t, "report.docx", zip))
	require.NoError(t, err)
	assert.False(t, res.IsMasquerade)
	assert.Equal(t, "SAFE", res.RiskLevel)
}

// zip 伪装成 jpg 不在白名单 → 标记
func TestInspectZipAsImage(t *testing.T) {
	ins := NewInspector()
	zip := append([]byte{0x50, 0x4B, 0x03, 0x04}, make([]byte, 64)...)

	res, err := ins.Inspect(writeFile(t, "photo.jpg", zip))
	require.NoError(t, err)
	assert.True(t, res.IsMasquerade)
	assert.Equal(t, "MEDIUM", res.RiskLevel)
}

func TestInspectPlainTextTrusted(t *testing.T) {
	ins := NewInspector()
	res, err := ins.Inspect(writeFile(t, "notes.md", []byte("just some notes\n")))
	require.NoError(t, err)
	assert.False(t, res.IsMasquerade)
	assert.Equal(t, "SAFE", res.RiskLevel)
}

func TestInspectNoExtension(t *testing.T) {
	ins := NewInspector()
	res, err := ins.Inspect(writeFile(t, "README", []byte("hello")))
	require.NoError(t, err)
	assert.False(t, res.IsMasquerade)
}

func TestInspectEmptyFile(t *testing.T) {
	ins := NewInspector()
	res, err := ins.Inspect(writeFile(t, "empty.bin", nil))
	require.NoError(t, err)
	assert.False(t, res.IsMasquerade)
}

func TestInspectMissingFile(t *testing.T) {
	ins := NewInspector()
	_, err := ins.Inspect(filepath.Join(t.TempDir(), "gone.txt"))
	assert.Error(t, err)
}
