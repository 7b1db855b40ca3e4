package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// testEnv is a data directory and config file for one device.
type testEnv struct {
	dir    string
	config string
}

// newTestEnv writes a config for device using backend, plus any extra
// YAML lines.
func newTestEnv(t *testing.T, device, backend string, extra ...string) testEnv {
	t.Helper()
	dir := t.TempDir()
	var b strings.Builder
	fmt.Fprintf(&b, "data_dir: %s\n", filepath.Join(dir, "data"))
	fmt.Fprintf(&b, "device: %s\n", device)
	fmt.Fprintf(&b, "store:\n  backend: %s\n", backend)
	for _, line := range extra {
		b.WriteString(line + "\n")
	}
	path := filepath.Join(dir, "recall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return testEnv{dir: dir, config: path}
}

// run executes the root command against env and returns stdout.
func (e testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return execute(t, context.Background(), append([]string{"--config", e.config}, args...)...)
}

// mustRun is run that fails the test on error.
func (e testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		t.Logf("stderr: %s", errOut.String())
	}
	return out.String(), err
}

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
