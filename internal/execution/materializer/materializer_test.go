package materializer_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"codeexec/internal/execution/materializer"
)

func newMaterializer(t *testing.T) *materializer.Materializer {
	t.Helper()
	m, err := materializer.New(filepath.Join(t.TempDir(), "scratch"))
	if err != nil {
		t.Fatalf("create materializer: %v", err)
	}
	return m
}

func TestMaterializeWritesSource(t *testing.T) {
	m := newMaterializer(t)
	ctx := context.Background()

	sf, err := m.Materialize(ctx, "print('hi')", ".py")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	defer m.Release(ctx, sf)

	data, err := os.ReadFile(sf.Path)
	if err != nil {
		t.Fatalf("read scratch file: %v", err)
	}
	if string(data) != "print('hi')" {
		t.Fatalf("unexpected content: %q", data)
	}
	if filepath.Ext(sf.Path) != ".py" {
		t.Fatalf("unexpected extension: %s", sf.Path)
	}
	if !strings.HasPrefix(filepath.Base(sf.Path), sf.ID) {
		t.Fatalf("file name should start with id: %s", sf.Path)
	}
	if filepath.Dir(sf.Dir) != m.Root() {
		t.Fatalf("scratch dir outside root: %s", sf.Dir)
	}
	if sf.CreatedAt.IsZero() {
		t.Fatalf("created at not set")
	}
	if sf.Sibling(".js") != filepath.Join(sf.Dir, sf.ID+".js") {
		t.Fatalf("unexpected sibling path: %s", sf.Sibling(".js"))
	}
}

func TestMaterializeRejectsBadExtension(t *testing.T) {
	m := newMaterializer(t)
	if _, err := m.Materialize(context.Background(), "", "py"); err == nil {
		t.Fatalf("expected error for extension without dot")
	}
}

func TestReleaseRemovesDerivedArtifacts(t *testing.T) {
	m := newMaterializer(t)
	ctx := context.Background()

	sf, err := m.Materialize(ctx, "const x: number = 1", ".ts")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	harness, err := sf.Attach(sf.ID+".harness.js", "// harness")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	artifact := sf.Sibling(".js")
	if err := os.WriteFile(artifact, []byte("var x = 1;"), 0644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	m.Release(ctx, sf)

	for _, path := range []string{sf.Path, harness, artifact, sf.Dir} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be removed, stat err=%v", path, err)
		}
	}

	// A second release and a nil release are harmless.
	m.Release(ctx, sf)
	m.Release(ctx, nil)
}

func TestReleaseIgnoresForeignDirectories(t *testing.T) {
	m := newMaterializer(t)
	outside := t.TempDir()
	keep := filepath.Join(outside, "keep.txt")
	if err := os.WriteFile(keep, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m.Release(context.Background(), &materializer.ScratchFile{Dir: outside})

	if _, err := os.Stat(keep); err != nil {
		t.Fatalf("foreign directory was touched: %v", err)
	}
}

func TestAttachRejectsPaths(t *testing.T) {
	m := newMaterializer(t)
	ctx := context.Background()
	sf, err := m.Materialize(ctx, "", ".js")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	defer m.Release(ctx, sf)

	if _, err := sf.Attach("../escape.js", "x"); err == nil {
		t.Fatalf("expected error for nested name")
	}
	if _, err := sf.Attach("", "x"); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

func TestConcurrentMaterializeIsUnique(t *testing.T) {
	m := newMaterializer(t)
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	paths := make(chan string, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sf, err := m.Materialize(ctx, "print('same')", ".py")
			if err != nil {
				errs <- err
				return
			}
			paths <- sf.Path
		}()
	}
	wg.Wait()
	close(paths)
	close(errs)

	for err := range errs {
		t.Fatalf("materialize: %v", err)
	}
	seen := make(map[string]bool)
	for p := range paths {
		if seen[p] {
			t.Fatalf("duplicate scratch path %s", p)
		}
		seen[p] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d paths, got %d", workers, len(seen))
	}
}

func TestSweepRemovesStaleDirectories(t *testing.T) {
	m := newMaterializer(t)
	ctx := context.Background()

	stale, err := m.Materialize(ctx, "old", ".py")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	fresh, err := m.Materialize(ctx, "new", ".py")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	defer m.Release(ctx, fresh)

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale.Dir, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if removed := m.Sweep(ctx, time.Hour); removed != 1 {
		t.Fatalf("expected 1 removed dir, got %d", removed)
	}
	if _, err := os.Stat(stale.Dir); !os.IsNotExist(err) {
		t.Fatalf("stale dir still present: %v", err)
	}
	if _, err := os.Stat(fresh.Path); err != nil {
		t.Fatalf("fresh file removed: %v", err)
	}
}
