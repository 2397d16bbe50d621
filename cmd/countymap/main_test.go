// Package main provides tests for the countymap CLI.
package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/frances-ha/egm722/internal/cli"
	"github.com/frances-ha/egm722/internal/cli/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := execute(t, "version")
	if err != nil {
		t.Errorf("version command error = %v", err)
	}
	if !strings.Contains(out, "countymap") {
		t.Errorf("version output should contain 'countymap', got: %s", out)
	}
}

func TestHelpCommand(t *testing.T) {
	out, err := execute(t, "--help")
	if err != nil {
		t.Errorf("help command error = %v", err)
	}
	for _, expected := range []string{"run", "inspect", "history", "serve", "init"} {
		if !strings.Contains(out, expected) {
			t.Errorf("help output should contain '%s', got: %s", expected, out)
		}
	}
}

func TestRunCommand(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	t.Chdir(dir)

	out, err := execute(t, "run", "-o", "markdown")
	if err != nil {
		t.Fatalf("run command error = %v\n%s", err, out)
	}
	for _, expected := range []string{"## Population by county", "Antrim", "Down", "completed in"} {
		if !strings.Contains(out, expected) {
			t.Errorf("run output should contain '%s', got: %s", expected, out)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "map.png")); err != nil {
		t.Errorf("map not written: %v", err)
	}
}

func TestRunThenHistoryJSON(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	t.Chdir(dir)

	if out, err := execute(t, "run", "--no-map", "-o", "json"); err != nil {
		t.Fatalf("run command error = %v\n%s", err, out)
	}

	out, err := execute(t, "history", "-o", "json")
	if err != nil {
		t.Fatalf("history command error = %v", err)
	}
	var runs []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("history output is not JSON: %v\n%s", err, out)
	}
	if len(runs) != 1 || runs[0].Status != "completed" {
		t.Errorf("want one completed run, got %+v", runs)
	}
}

func TestInvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "run", "--vmin", "9000", "--vmax", "10")
	if err == nil || !strings.Contains(err.Error(), "map.vmin") {
		t.Errorf("want map.vmin validation error, got %v", err)
	}
}
