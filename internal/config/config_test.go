package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleOptions struct {
	Host string `config:"host"`
	Port int    `config:"port"`
	TLS  bool   `config:"tls"`
}

func TestSetDecodesTaggedFields(t *testing.T) {
	opt := &sampleOptions{}
	err := Set(Mapper{"host": "ftp.example.com", "port": "21", "tls": "true"}, opt)
	require.NoError(t, err)
	assert.Equal(t, "ftp.example.com", opt.Host)
	assert.Equal(t, 21, opt.Port)
	assert.True(t, opt.TLS)
}

func TestSetIgnoresUnknownKeys(t *testing.T) {
	opt := &sampleOptions{Host: "unchanged"}
	err := Set(Mapper{"bogus": "x"}, opt)
	require.NoError(t, err)
	assert.Equal(t, "unchanged", opt.Host)
}

const sampleRuleFile = `
max_file_size_bytes: 1048576
max_archive_size_bytes: 1073741824
supported_archives: [zip, tar, gz]
match_rules:
  - search_location: file_content
    search_pattern: "password=\\S+"
    category: credentials
    relevance: high
    accuracy: medium
  - search_location: file_name
    search_pattern: "^.*\\.bak$"
    category: backup
    relevance: low
    accuracy: low
`

func TestLoadRuleFileCompiles(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(p, []byte(sampleRuleFile), 0o600))

	rf, set, err := LoadRuleFile(p)
	require.NoError(t, err)
	assert.Equal(t, int64(1048576), rf.MaxFileSizeBytes)
	assert.Len(t, set.All(), 2)
	assert.Equal(t, "credentials", set.All()[0].Category)
}

func TestLoadRuleFileRejectsBadThreshold(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(p, []byte("max_file_size_bytes: -1\n"), 0o600))

	_, _, err := LoadRuleFile(p)
	require.Error(t, err)
}
