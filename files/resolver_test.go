package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hjlabs/hjmcpsse/progress"
	"github.com/hjlabs/hjmcpsse/protocol"
)

func newTree(t *testing.T) (*Resolver, string) {
	t.Helper()
	root := t.TempDir()
	write := func(rel, content string) {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	write("README.md", "# hello\n")
	write("alpha.txt", "alpha")
	write("Beta.txt", string(make([]byte, 2048)))
	write("docs/guide.md", "guide")
	write("src/main.go", "package main\n")
	require.NoError(t, os.Mkdir(filepath.Join(root, "Zeta"), 0o755))

	r, err := New(root)
	require.NoError(t, err)
	return r, root
}

func TestNew(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	_, err = New(f)
	assert.Error(t, err)
}

func TestList_Root(t *testing.T) {
	r, root := newTree(t)

	listing, err := r.List(context.Background(), ".")
	require.NoError(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var wantDirs, wantFiles []string
	for _, e := range entries {
		if e.IsDir() {
			wantDirs = append(wantDirs, e.Name())
		} else {
			wantFiles = append(wantFiles, e.Name())
		}
	}
	var gotFiles []string
	for _, f := range listing.Files {
		gotFiles = append(gotFiles, f.Name)
	}

	sort.Strings(wantDirs)
	sort.Strings(wantFiles)
	gotDirs := append([]string(nil), listing.Directories...)
	sort.Strings(gotDirs)
	sort.Strings(gotFiles)
	assert.Empty(t, cmp.Diff(wantDirs, gotDirs))
	assert.Empty(t, cmp.Diff(wantFiles, gotFiles))
	assert.Equal(t, ".", listing.Path)
}

func TestList_SortedCaseInsensitive(t *testing.T) {
	r, _ := newTree(t)

	listing, err := r.List(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"docs", "src", "Zeta"}, listing.Directories)
	want := []FileInfo{
		{Name: "alpha.txt", Size: 5, SizeKB: 5.0 / 1024},
		{Name: "Beta.txt", Size: 2048, SizeKB: 2},
		{Name: "README.md", Size: 8, SizeKB: 8.0 / 1024},
	}
	assert.Empty(t, cmp.Diff(want, listing.Files))
}

func TestList_Errors(t *testing.T) {
	r, _ := newTree(t)

	tests := []struct {
		id   string
		want protocol.Kind
	}{
		{"missing", protocol.KindNotFound},
		{"alpha.txt/child", protocol.KindNotFound},
		{"alpha.txt", protocol.KindNotADirectory},
		{"..", protocol.KindAccessDenied},
		{"../../etc", protocol.KindAccessDenied},
		{"docs/../../etc", protocol.KindAccessDenied},
		{"/etc", protocol.KindAccessDenied},
		{"bad\x00name", protocol.KindInvalidArguments},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			_, err := r.List(context.Background(), tt.id)
			require.Error(t, err)
			assert.Equal(t, tt.want, protocol.KindOf(err), "error: %v", err)
		})
	}
}

func TestClean_Containment(t *testing.T) {
	r, _ := newTree(t)

	tests := []struct {
		id     string
		inside bool
	}{
		{".", true},
		{"docs/./guide.md", true},
		{"docs/../src", true},
		{"a/b/../../c", true},
		{"..", false},
		{"docs/../..", false},
		{"src/../../x", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p, err := r.Clean(tt.id)
			if !tt.inside {
				require.Error(t, err)
				assert.Equal(t, protocol.KindAccessDenied, protocol.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, within(p, r.Root()), "%s escapes %s", p, r.Root())
		})
	}
}

func TestResolve_SymlinkEscape(t *testing.T) {
	r, root := newTree(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("s"), 0o644))
	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := r.List(context.Background(), "escape")
	assert.Equal(t, protocol.KindAccessDenied, protocol.KindOf(err))

	_, err = r.Read(context.Background(), "escape/secret")
	assert.Equal(t, protocol.KindAccessDenied, protocol.KindOf(err))
}

func TestRead(t *testing.T) {
	r, root := newTree(t)

	t.Run("text", func(t *testing.T) {
		c, err := r.Read(context.Background(), "docs/guide.md")
		require.NoError(t, err)
		assert.Equal(t, "guide", c.Text)
		assert.False(t, c.Binary)
		assert.Equal(t, "docs/guide.md", c.Path)
	})

	t.Run("binary", func(t *testing.T) {
		data := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}
		require.NoError(t, os.WriteFile(filepath.Join(root, "img.bin"), data, 0o644))

		c, err := r.Read(context.Background(), "img.bin")
		require.NoError(t, err)
		assert.True(t, c.Binary)
		assert.Empty(t, c.Text)
		assert.Equal(t, "89504e4700ff", c.Preview)
		assert.Equal(t, "Binary file (6 bytes), not displayed", c.Marker())
	})

	t.Run("utf16 with bom", func(t *testing.T) {
		data := []byte{0xff, 0xfe, 'h', 0, 'i', 0}
		require.NoError(t, os.WriteFile(filepath.Join(root, "wide.txt"), data, 0o644))

		c, err := r.Read(context.Background(), "wide.txt")
		require.NoError(t, err)
		assert.False(t, c.Binary)
		assert.Equal(t, "hi", c.Text)
	})

	t.Run("directory", func(t *testing.T) {
		_, err := r.Read(context.Background(), "docs")
		assert.Equal(t, protocol.KindNotAFile, protocol.KindOf(err))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := r.Read(context.Background(), "nope.txt")
		assert.Equal(t, protocol.KindNotFound, protocol.KindOf(err))
	})

	t.Run("traversal", func(t *testing.T) {
		_, err := r.Read(context.Background(), "../../../etc/passwd")
		assert.Equal(t, protocol.KindAccessDenied, protocol.KindOf(err))
	})
}

func TestRead_TooLarge(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "big"), make([]byte, 64), 0o644))
	r, err := New(root, WithMaxSize(32))
	require.NoError(t, err)

	_, err = r.Read(context.Background(), "big")
	require.Error(t, err)
	assert.Equal(t, protocol.KindHandlerError, protocol.KindOf(err))
	assert.Contains(t, err.Error(), "file too large")
}

func TestRead_PermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	r, root := newTree(t)
	p := filepath.Join(root, "locked.txt")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o000))

	_, err := r.Read(context.Background(), "locked.txt")
	assert.Equal(t, protocol.KindPermissionDenied, protocol.KindOf(err))
}

func TestStat(t *testing.T) {
	r, _ := newTree(t)

	isDir, err := r.Stat(context.Background(), "docs")
	require.NoError(t, err)
	assert.True(t, isDir)

	isDir, err = r.Stat(context.Background(), "alpha.txt")
	require.NoError(t, err)
	assert.False(t, isDir)
}

type notifier struct {
	mu    sync.Mutex
	count int
}

func (n *notifier) SendNotification(string, any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
	return nil
}

func TestList_ReportsProgress(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 130; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, fmt.Sprintf("f%03d", i)), nil, 0o644))
	}
	r, err := New(root)
	require.NoError(t, err)

	n := &notifier{}
	ctx := progress.WithReporter(context.Background(), progress.NewReporter(progress.Token(`"p"`), n))
	listing, err := r.List(ctx, ".")
	require.NoError(t, err)
	assert.Len(t, listing.Files, 130)
	// updates at 64, 128 and completion
	assert.Equal(t, 3, n.count)
}

func TestList_Cancelled(t *testing.T) {
	r, _ := newTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.List(ctx, ".")
	require.Error(t, err)
	assert.Equal(t, protocol.KindHandlerError, protocol.KindOf(err))
}

func TestListing_JSON(t *testing.T) {
	r, _ := newTree(t)
	listing, err := r.List(context.Background(), "docs")
	require.NoError(t, err)

	data, err := json.Marshal(listing)
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"docs","directories":[],"files":[{"name":"guide.md","size":5,"size_kb":0.0048828125}]}`, string(data))
}

func TestComplete(t *testing.T) {
	r, _ := newTree(t)
	ctx := context.Background()

	assert.Equal(t, []string{"docs/"}, r.Complete(ctx, "do", 0))
	assert.Equal(t, []string{"docs/guide.md"}, r.Complete(ctx, "docs/g", 0))
	assert.Equal(t, []string{"alpha.txt"}, r.Complete(ctx, "al", 0))
	assert.Len(t, r.Complete(ctx, "", 2), 2)
	assert.Nil(t, r.Complete(ctx, "../", 0))
	assert.Nil(t, r.Complete(ctx, "/etc", 0))
}

func TestWatch(t *testing.T) {
	r, root := newTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changes atomic.Int32
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx, 10*time.Millisecond, func() { changes.Add(1) }) }()

	i := 0
	require.Eventually(t, func() bool {
		i++
		_ = os.WriteFile(filepath.Join(root, fmt.Sprintf("new-%d.txt", i)), nil, 0o644)
		return changes.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
