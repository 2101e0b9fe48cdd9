//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"
)

// registryURL is the address of the registry started by TestMain.
var registryURL string

// CLIResult is one finished mcp-registry invocation.
type CLIResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

func (r CLIResult) String() string {
	return fmt.Sprintf("exit=%d\nstdout:\n%s\nstderr:\n%s", r.ExitCode, r.Stdout, r.Stderr)
}

// RunCLI runs mcp-registry with args. The local .env file is never read so
// that only the suite's environment applies.
func RunCLI(t *testing.T, args ...string) CLIResult {
	t.Helper()
	bin := resolveBinaryPath()
	args = append([]string{"--env-file", ""}, args...)

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(bin, args...)
	cmd.Env = os.Environ()
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	err := cmd.Run()

	res := CLIResult{Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
	}
	t.Logf("mcp-registry %s: %s", strings.Join(args, " "), res)
	return res
}

// RequireSuccess fails the test unless the command exited 0.
func RequireSuccess(t *testing.T, res CLIResult) {
	t.Helper()
	if res.ExitCode != 0 {
		t.Fatalf("command failed: %s", res)
	}
}

// RequireFailure fails the test if the command exited 0.
func RequireFailure(t *testing.T, res CLIResult) {
	t.Helper()
	if res.ExitCode == 0 {
		t.Fatalf("command unexpectedly succeeded: %s", res)
	}
}

// RequireOutputContains fails the test unless substr appears on stdout or stderr.
func RequireOutputContains(t *testing.T, res CLIResult, substr string) {
	t.Helper()
	if !strings.Contains(res.Stdout+res.Stderr, substr) {
		t.Fatalf("output does not contain %q: %s", substr, res)
	}
}

// RegistryURL returns the registry URL set during TestMain setup.
func RegistryURL(t *testing.T) string {
	t.Helper()
	if registryURL == "" {
		t.Fatal("registry was not started by TestMain")
	}
	return registryURL
}

// MintToken issues a token through "mcp-registry token".
func MintToken(t *testing.T, user string, admin bool) string {
	t.Helper()
	args := []string{"token", "--user", user}
	if admin {
		args = append(args, "--admin")
	}
	result := RunCLI(t, args...)
	RequireSuccess(t, result)
	return strings.TrimSpace(result.Stdout)
}

// RegistryDo sends a JSON request to the /v0 API and decodes a JSON response
// into out when out is non-nil. It fails the test on any transport error.
func RegistryDo(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, RegistryURL(t)+"/v0"+path, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if out != nil && resp.StatusCode < http.StatusBadRequest {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("Failed to decode %s %s response: %v\n%s", method, path, err, data)
		}
	}
	return resp.StatusCode
}

// UniqueNameWithPrefix returns prefix with a time-based suffix.
func UniqueNameWithPrefix(prefix string) string {
	return prefix + "-" + strconv.FormatInt(time.Now().UnixNano()%1_000_000, 36)
}
