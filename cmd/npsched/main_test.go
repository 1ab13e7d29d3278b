// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRoot resets the package-level flag state mutated by earlier
// tests before building a fresh command tree.
func newTestRoot() interface {
	SetArgs([]string)
	Execute() error
} {
	debug = false
	format = "text"
	precedenceFile = ""
	abortsFile = ""
	processors = 1
	iipName = "null"
	usePOR = false
	workers = 0
	wallClock = 0
	stateBudget = 0
	continueMiss = false
	graphFile = ""
	serveAddr = ""
	authToken = ""
	showProgress = false
	return newRootCmd()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAnalyzeCommand_Schedulable(t *testing.T) {
	dir := t.TempDir()
	jobs := writeFile(t, dir, "jobs.csv",
		"task_id, job_id, arr_min, arr_max, cost_min, cost_max, deadline, priority\n"+
			"1, 1, 0, 0, 1, 2, 10, 1\n"+
			"2, 1, 0, 0, 1, 2, 20, 2\n")

	root := newTestRoot()
	root.SetArgs([]string{"analyze", jobs, "--processors", "1"})

	err := root.Execute()
	assert.NoError(t, err)
}

func TestAnalyzeCommand_WithPrecedenceAndGraph(t *testing.T) {
	dir := t.TempDir()
	jobs := writeFile(t, dir, "jobs.csv",
		"task_id, job_id, arr_min, arr_max, cost_min, cost_max, deadline, priority\n"+
			"1, 1, 0, 0, 1, 1, 10, 1\n"+
			"1, 2, 0, 0, 1, 1, 20, 2\n")
	prec := writeFile(t, dir, "prec.csv",
		"from_task, from_job, to_task, to_job\n"+
			"1, 1, 1, 2\n")
	dot := filepath.Join(dir, "graph.dot")

	root := newTestRoot()
	root.SetArgs([]string{"analyze", jobs, "--precedence", prec, "--graph", dot})

	err := root.Execute()
	require.NoError(t, err)

	content, err := os.ReadFile(dot)
	require.NoError(t, err)
	assert.Contains(t, string(content), "digraph npsched")
	assert.Contains(t, string(content), "->")
}

func TestAnalyzeCommand_MissingFile(t *testing.T) {
	root := newTestRoot()
	root.SetArgs([]string{"analyze", "/does/not/exist.csv"})

	err := root.Execute()
	assert.Error(t, err)
}

func TestAnalyzeCommand_MalformedWorkload(t *testing.T) {
	dir := t.TempDir()
	jobs := writeFile(t, dir, "jobs.csv",
		"task_id, job_id, arr_min, arr_max, cost_min, cost_max, deadline, priority\n"+
			"1, 1, 0, 0, 1\n")

	root := newTestRoot()
	root.SetArgs([]string{"analyze", jobs})

	err := root.Execute()
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	root := newTestRoot()
	root.SetArgs([]string{"version"})

	assert.NoError(t, root.Execute())
}
