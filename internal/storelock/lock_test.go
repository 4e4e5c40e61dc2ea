package storelock

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"credvault/internal/logging"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credvault.lock")
	m := NewManager(path, logging.NewLogger(logging.LevelError))
	m.hostname = func() (string, error) { return "testhost", nil }
	return m
}

func writeLock(t *testing.T, path string, info LockInfo) {
	t.Helper()
	data, err := json.Marshal(info)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestAcquire_Success(t *testing.T) {
	m := newTestManager(t)

	if err := m.Acquire(); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !m.Held() {
		t.Error("Held() = false after Acquire")
	}

	info, err := os.Stat(m.Path())
	if err != nil {
		t.Fatalf("lock file not created: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("lock permissions = %o, want 600", info.Mode().Perm())
	}

	status, err := m.GetStatus()
	if err != nil {
		t.Fatal(err)
	}
	if status == nil || status.PID != os.Getpid() || status.Hostname != "testhost" {
		t.Errorf("GetStatus() = %+v", status)
	}
}

func TestAcquire_Reentrant(t *testing.T) {
	m := newTestManager(t)
	if err := m.Acquire(); err != nil {
		t.Fatal(err)
	}
	if err := m.Acquire(); err != nil {
		t.Errorf("second Acquire() error = %v", err)
	}
}

func TestAcquire_HeldByOtherProcess(t *testing.T) {
	tests := []struct {
		name  string
		info  LockInfo
		alive bool
	}{
		{"live process on this host", LockInfo{PID: 424242, Hostname: "testhost"}, true},
		{"process on another host", LockInfo{PID: 424242, Hostname: "elsewhere"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			m.alive = func(int) bool { return tt.alive }
			tt.info.SinceTS = time.Now().UTC()
			writeLock(t, m.Path(), tt.info)

			err := m.Acquire()
			if !errors.Is(err, ErrLocked) {
				t.Fatalf("Acquire() error = %v, want ErrLocked", err)
			}
			if m.Held() {
				t.Error("Held() = true after failed Acquire")
			}

			status, err := m.GetStatus()
			if err != nil || status == nil || status.PID != tt.info.PID {
				t.Errorf("existing lock disturbed: %+v, %v", status, err)
			}
		})
	}
}

func TestAcquire_StaleLock(t *testing.T) {
	m := newTestManager(t)
	m.alive = func(int) bool { return false }
	writeLock(t, m.Path(), LockInfo{PID: 424242, Hostname: "testhost", SinceTS: time.Now().Add(-time.Hour)})

	if err := m.Acquire(); err != nil {
		t.Fatalf("Acquire() over stale lock error = %v", err)
	}

	status, err := m.GetStatus()
	if err != nil {
		t.Fatal(err)
	}
	if status.PID != os.Getpid() {
		t.Errorf("lock pid = %d, want %d", status.PID, os.Getpid())
	}
}

func TestAcquire_MalformedLock(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"garbage", "not json"},
		{"zero pid", `{"pid": 0, "hostname": "testhost"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			if err := os.WriteFile(m.Path(), []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			if err := m.Acquire(); err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}
			if !m.Held() {
				t.Error("Held() = false")
			}
		})
	}
}

func TestRelease(t *testing.T) {
	m := newTestManager(t)
	if err := m.Acquire(); err != nil {
		t.Fatal(err)
	}

	if err := m.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if m.Held() {
		t.Error("Held() = true after Release")
	}
	if _, err := os.Stat(m.Path()); !os.IsNotExist(err) {
		t.Error("lock file still present after Release")
	}

	// A second release is a no-op
	if err := m.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}

func TestRelease_NotHeld(t *testing.T) {
	m := newTestManager(t)
	writeLock(t, m.Path(), LockInfo{PID: 424242, Hostname: "testhost"})

	if err := m.Release(); err != nil {
		t.Fatalf("Release() without holding error = %v", err)
	}
	if _, err := os.Stat(m.Path()); err != nil {
		t.Error("Release() removed a lock it did not hold")
	}
}

func TestRelease_TakenOver(t *testing.T) {
	m := newTestManager(t)
	if err := m.Acquire(); err != nil {
		t.Fatal(err)
	}
	writeLock(t, m.Path(), LockInfo{PID: 424242, Hostname: "testhost"})

	if err := m.Release(); err == nil {
		t.Error("Release() should fail when another process owns the file")
	}
	if _, err := os.Stat(m.Path()); err != nil {
		t.Error("Release() removed another process's lock")
	}
}

func TestForceUnlock(t *testing.T) {
	m := newTestManager(t)
	writeLock(t, m.Path(), LockInfo{PID: 424242, Hostname: "elsewhere"})

	if err := m.ForceUnlock(); err != nil {
		t.Fatalf("ForceUnlock() error = %v", err)
	}
	status, err := m.GetStatus()
	if err != nil || status != nil {
		t.Errorf("GetStatus() after ForceUnlock = %+v, %v", status, err)
	}

	// Nothing to remove
	if err := m.ForceUnlock(); err != nil {
		t.Errorf("ForceUnlock() on missing lock error = %v", err)
	}
}

func TestProcessAlive(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Error("processAlive(self) = false")
	}
	if processAlive(0) || processAlive(-1) {
		t.Error("processAlive() true for non-positive pid")
	}
}

func TestUnlock(t *testing.T) {
	tests := []struct {
		name      string
		lock      *LockInfo
		raw       string
		alive     bool
		force     bool
		wantErr   bool
		wantGone  bool
		wantOwner int
	}{
		{name: "no lock", wantGone: true},
		{name: "dead holder on this host", lock: &LockInfo{PID: 4242, Hostname: "testhost"}, wantGone: true, wantOwner: 4242},
		{name: "live holder on this host", lock: &LockInfo{PID: 4242, Hostname: "testhost"}, alive: true, wantErr: true, wantOwner: 4242},
		{name: "live holder forced", lock: &LockInfo{PID: 4242, Hostname: "testhost"}, alive: true, force: true, wantGone: true, wantOwner: 4242},
		{name: "holder on another host", lock: &LockInfo{PID: 4242, Hostname: "elsewhere"}, wantErr: true, wantOwner: 4242},
		{name: "holder on another host forced", lock: &LockInfo{PID: 4242, Hostname: "elsewhere"}, force: true, wantGone: true, wantOwner: 4242},
		{name: "unparseable lock", raw: "{", wantGone: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			m.alive = func(int) bool { return tt.alive }
			switch {
			case tt.lock != nil:
				writeLock(t, m.Path(), *tt.lock)
			case tt.raw != "":
				if err := os.WriteFile(m.Path(), []byte(tt.raw), 0o600); err != nil {
					t.Fatal(err)
				}
			}

			holder, err := m.Unlock(tt.force)
			if tt.wantErr {
				if !errors.Is(err, ErrLocked) {
					t.Fatalf("Unlock() error = %v, want ErrLocked", err)
				}
			} else if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}

			if tt.wantOwner != 0 && (holder == nil || holder.PID != tt.wantOwner) {
				t.Errorf("Unlock() holder = %+v, want pid %d", holder, tt.wantOwner)
			}
			_, statErr := os.Stat(m.Path())
			if gone := os.IsNotExist(statErr); gone != tt.wantGone {
				t.Errorf("lock removed = %v, want %v", gone, tt.wantGone)
			}
		})
	}
}

func TestCreate_NeverReplacesExistingLock(t *testing.T) {
	m := newTestManager(t)
	m.self = LockInfo{PID: os.Getpid(), Hostname: "testhost"}
	writeLock(t, m.Path(), LockInfo{PID: 4242, Hostname: "elsewhere"})
	before, err := os.ReadFile(m.Path())
	if err != nil {
		t.Fatal(err)
	}

	created, err := m.create()
	if err != nil {
		t.Fatalf("create() error = %v", err)
	}
	if created {
		t.Fatal("create() = true over an existing lock")
	}
	after, err := os.ReadFile(m.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(before) {
		t.Errorf("existing lock rewritten: %s", after)
	}
	assertOnlyLock(t, m.Path())
}

func TestAcquire_PublishesCompleteLock(t *testing.T) {
	m := newTestManager(t)
	if err := m.Acquire(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(m.Path())
	if err != nil {
		t.Fatal(err)
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		t.Fatalf("lock file not valid JSON: %v", err)
	}
	if !info.SameOwner(LockInfo{PID: os.Getpid(), Hostname: "testhost"}) {
		t.Errorf("lock content = %+v", info)
	}
	assertOnlyLock(t, m.Path())
}

// assertOnlyLock fails when anything besides the lock file sits in its directory
func assertOnlyLock(t *testing.T, path string) {
	t.Helper()
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != filepath.Base(path) {
			t.Errorf("unexpected file %s next to lock", e.Name())
		}
	}
}
