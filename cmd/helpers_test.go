package cmd

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/iksnae/kbchat/internal"
	"github.com/iksnae/kbchat/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// syncBuffer is a bytes.Buffer safe for the REPL goroutine and the test
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

// isolateHome points HOME at a temp dir and hides KBCHAT_* settings
func isolateHome(t *testing.T) string {
	t.Helper()
	home := testutil.CreateTempDir(t)
	t.Setenv("HOME", home)
	for _, key := range []string{"SERVER_URL", "TOP_K", "REQUEST_TIMEOUT", "LOG_LEVEL", "LOG_FILE", "CACHE_DIR", "CATALOG_TTL"} {
		t.Setenv(internal.EnvPrefix+"_"+key, "")
	}
	return home
}

// resetFlags restores every flag to its default so runs do not leak into each other
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// executeCommand runs the root command with args and stdin, returning stdout and stderr
func executeCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	isolateHome(t)
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// newMockBackend starts a backend holding the sample documents
func newMockBackend(t *testing.T) *testutil.MockServer {
	t.Helper()
	return testutil.NewMockServer(t, testutil.SampleDocuments...)
}

// refundFrames is a complete answer with one source
func refundFrames() []string {
	return []string{
		testutil.SourcesFrame(testutil.Source{DocName: "handbook.pdf", Content: "Refunds are issued within 30 days of purchase.", Score: 0.91}),
		testutil.ContentFrame("Refunds are issued "),
		testutil.ContentFrame("within **30 days**."),
		testutil.DoneFrame(),
	}
}
