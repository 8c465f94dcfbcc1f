package nt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cau-citcwalker/citcrun/internal/handle"
	"github.com/cau-citcwalker/citcrun/internal/ntstatus"
)

func TestTranslatePath(t *testing.T) {
	cases := map[string]string{
		`C:\Windows\System32\kernel32.dll`: "Windows/System32/kernel32.dll",
		`c:\foo\bar.txt`:                   "foo/bar.txt",
		`relative\path.txt`:                "relative/path.txt",
		`already/posix.txt`:                "already/posix.txt",
	}
	for in, want := range cases {
		if got := TranslatePath(in); got != want {
			t.Errorf("TranslatePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateReadWriteCloseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	ht := handle.New()
	l := New(ht)

	h, status := l.CreateFile(path, AccessRead|AccessWrite, CreateAlways)
	if status != ntstatus.StatusSuccess {
		t.Fatalf("CreateFile: %v", status)
	}

	payload := []byte("hello citcrun")
	n, status := l.Write(h, payload)
	if status != ntstatus.StatusSuccess || n != len(payload) {
		t.Fatalf("Write: n=%d status=%v", n, status)
	}

	if _, status := l.SetFilePosition(h, 0, WhenceBegin); status != ntstatus.StatusSuccess {
		t.Fatalf("SetFilePosition: %v", status)
	}

	size, status := l.QueryFileSize(h)
	if status != ntstatus.StatusSuccess || size != int64(len(payload)) {
		t.Fatalf("QueryFileSize: size=%d status=%v", size, status)
	}

	buf := make([]byte, len(payload))
	n, status = l.Read(h, buf)
	if status != ntstatus.StatusSuccess || string(buf[:n]) != string(payload) {
		t.Fatalf("Read: got %q status=%v", buf[:n], status)
	}

	if status := l.Close(h); status != ntstatus.StatusSuccess {
		t.Fatalf("Close: %v", status)
	}

	if status := l.DeleteFile(path); status != ntstatus.StatusSuccess {
		t.Fatalf("DeleteFile: %v", status)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file still exists after DeleteFile")
	}
}

func TestCreateNewRejectsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exists.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	ht := handle.New()
	l := New(ht)
	if _, status := l.CreateFile(path, AccessRead, CreateNew); status != ntstatus.StatusObjectNameCollision {
		t.Fatalf("want StatusObjectNameCollision, got %v", status)
	}
}

func TestOpenExistingMissingFileNotFound(t *testing.T) {
	ht := handle.New()
	l := New(ht)
	if _, status := l.CreateFile("/nonexistent/path/missing.txt", AccessRead, OpenExisting); status != ntstatus.StatusObjectNameNotFound {
		t.Fatalf("want StatusObjectNameNotFound, got %v", status)
	}
}

func TestCloseConsoleIsNoop(t *testing.T) {
	ht := handle.New()
	l := New(ht)
	if status := l.Close(handle.ConsoleOut + 1); status != ntstatus.StatusSuccess {
		t.Fatalf("closing console handle should succeed as no-op, got %v", status)
	}
}

func TestInvalidHandleOperations(t *testing.T) {
	ht := handle.New()
	l := New(ht)
	bad := handle.Handle(999999)
	if _, status := l.Read(bad, make([]byte, 1)); status != ntstatus.StatusInvalidHandle {
		t.Fatalf("want StatusInvalidHandle, got %v", status)
	}
	if status := l.Close(bad); status != ntstatus.StatusInvalidHandle {
		t.Fatalf("want StatusInvalidHandle, got %v", status)
	}
}
