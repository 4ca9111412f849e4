package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warscan/warscan/pkg/config"
	"github.com/warscan/warscan/pkg/output/exitcode"
	"github.com/warscan/warscan/pkg/runner"
)

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"version"}, &stdout, &stderr)
	assert.Equal(t, exitcode.Success, code)
	assert.True(t, strings.HasPrefix(stdout.String(), "warscan "))
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitcode.Usage, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage:")

	stderr.Reset()
	assert.Equal(t, exitcode.Usage, run([]string{"crawl"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "crawl"`)

	assert.Equal(t, exitcode.Success, run([]string{"help"}, &stdout, &stderr))
}

func TestRunScan_InvalidConfig(t *testing.T) {
	var stderr bytes.Buffer
	code := runScan([]string{"-limit", "5"}, &stderr)
	assert.Equal(t, exitcode.Usage, code)
	assert.Contains(t, stderr.String(), "input file")
}

func TestRunScan_MissingWorklist(t *testing.T) {
	dir := t.TempDir()
	var stderr bytes.Buffer
	code := runScan([]string{
		"-in", filepath.Join(dir, "missing.csv"),
		"-db", filepath.Join(dir, "scan.db"),
		"-metrics", "",
	}, &stderr)
	assert.Equal(t, exitcode.Fatal, code)
	assert.NoFileExists(t, filepath.Join(dir, "scan.db"))
}

func TestScan_EmptyWorklist(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(in, []byte("# nothing\n\n"), 0o600))

	cfg := config.Default()
	cfg.Input.File = in
	cfg.Output.Database = filepath.Join(dir, "scan.db")

	var stderr bytes.Buffer
	err := scan(context.Background(), cfg, slog.New(slog.NewTextHandler(&stderr, nil)), &stderr)
	assert.ErrorIs(t, err, runner.ErrEmptyWorklist)
}

func TestScan_ResumeMismatchIsUsageError(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "top.csv")
	require.NoError(t, os.WriteFile(in, []byte("1,example.com\n2,example.org\n"), 0o600))
	ckpt := filepath.Join(dir, "run.resume")
	require.NoError(t, os.WriteFile(ckpt, []byte(`{"version":"1","input":"other.csv","startLine":1,"limit":0,"totalTargets":2,"lastIndex":0}`), 0o600))

	cfg := config.Default()
	cfg.Input.File = in
	cfg.Input.Resume = true
	cfg.Input.CheckpointFile = ckpt
	cfg.Output.Database = filepath.Join(dir, "scan.db")

	var stderr bytes.Buffer
	err := scan(context.Background(), cfg, slog.New(slog.NewTextHandler(&stderr, nil)), &stderr)
	assert.Equal(t, exitcode.Usage, exitcode.FromError(err))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, config.LogConfig{Level: "warn", JSON: true})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "url", "http://example.com")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"url":"http://example.com"`)

	_, err = newLogger(&buf, config.LogConfig{Level: "loud"})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRunSplit(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "top.csv")
	var lines []string
	for i := 1; i <= 10; i++ {
		lines = append(lines, fmt.Sprintf("%d,site%d.example", i, i))
	}
	require.NoError(t, os.WriteFile(in, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	out := filepath.Join(dir, "groups")
	var stdout, stderr bytes.Buffer
	code := run([]string{"split", "-in", in, "-n", "3", "-chunk", "2", "-out", out}, &stdout, &stderr)
	require.Equal(t, exitcode.Success, code, stderr.String())

	first, err := os.ReadFile(filepath.Join(out, "extscan01.csv"))
	require.NoError(t, err)
	assert.Equal(t, "site1.example\nsite2.example\nsite7.example\nsite8.example\n", string(first))

	third, err := os.ReadFile(filepath.Join(out, "extscan03.csv"))
	require.NoError(t, err)
	assert.Equal(t, "site5.example\nsite6.example\n", string(third))
	assert.Equal(t, 3, strings.Count(stdout.String(), "\n"))
}

func TestRunSplit_Errors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitcode.Usage, runSplit(nil, &stdout, &stderr))
	assert.Equal(t, exitcode.Fatal, runSplit([]string{"-in", filepath.Join(t.TempDir(), "nope"), "-n", "2"}, &stdout, &stderr))

	in := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(in, []byte("a.example\n"), 0o600))
	assert.Equal(t, exitcode.Usage, runSplit([]string{"-in", in, "-n", "0"}, &stdout, &stderr))
}
