package server

import (
	"testing"
	"time"
)

func TestRegisterIDsMonotonic(t *testing.T) {
	r := NewRegistry()
	ids := []int{r.Register(), r.Register(), r.Register()}
	for i, id := range ids {
		if id != i {
			t.Fatalf("expected sequential ids from 0, got %v", ids)
		}
	}

	// 移除中間的 id 之後，新註冊不得重用任何舊 id
	if !r.Unregister(1) {
		t.Fatal("unregister existing id should return true")
	}
	if got := r.Register(); got != 3 {
		t.Fatalf("expected id 3 after unregister, got %d", got)
	}
	if r.Unregister(1) {
		t.Fatal("unregister absent id should return false")
	}
}

func TestUpdateUnknownSessionIsNoop(t *testing.T) {
	r := NewRegistry()
	id := r.Register()
	r.Unregister(id)

	if r.Update(id, 1, 2, "town", FacingUp, true) {
		t.Fatal("update after unregister should return false")
	}
	if _, ok := r.Snapshot()[id]; ok {
		t.Fatal("update must not recreate a removed session")
	}
}

func TestUpdateOnlyAdvancesTimestampOnChange(t *testing.T) {
	r := NewRegistry()
	id := r.Register()
	if !r.Update(id, 5, 6, "town", FacingLeft, true) {
		t.Fatal("update for live session should succeed")
	}

	// 把時間戳撥回過去，再送一筆完全相同的更新：no-op 不應續命
	r.mu.Lock()
	r.players[id].lastUpdate = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	r.Update(id, 5, 6, "town", FacingLeft, true)
	if evicted := r.EvictIdle(time.Minute); len(evicted) != 1 || evicted[0] != id {
		t.Fatalf("no-op update kept the session alive, evicted=%v", evicted)
	}
}

func TestEvictIdle(t *testing.T) {
	r := NewRegistry()
	idle := r.Register()
	active := r.Register()

	r.mu.Lock()
	r.players[idle].lastUpdate = time.Now().Add(-2 * time.Minute)
	r.players[active].lastUpdate = time.Now().Add(-2 * time.Minute)
	r.mu.Unlock()

	// active 在門檻內有真實變動，應被保留
	r.Update(active, 1, 1, "cave", FacingRight, false)

	evicted := r.EvictIdle(time.Minute)
	if len(evicted) != 1 || evicted[0] != idle {
		t.Fatalf("expected only idle session evicted, got %v", evicted)
	}
	snap := r.Snapshot()
	if _, ok := snap[idle]; ok {
		t.Fatal("idle session still present after eviction")
	}
	if _, ok := snap[active]; !ok {
		t.Fatal("active session should survive the sweep")
	}
}

func TestRestore(t *testing.T) {
	r := NewRegistry()
	id := r.Register()
	r.Unregister(id)

	if !r.Restore(id) {
		t.Fatal("restore of a previously allocated id should succeed")
	}
	if r.Restore(id) {
		t.Fatal("restore of an online id should fail")
	}
	if r.Restore(99) {
		t.Fatal("restore of a never-allocated id should fail")
	}

	// 續回的 session 是預設狀態
	p := r.Snapshot()[id]
	if p.X != 0 || p.Y != 0 || p.Map != "" || p.Dir != DefaultFacing || p.Moving {
		t.Fatalf("restored state should be defaults, got %+v", p)
	}

	// 新註冊依舊單調遞增
	if got := r.Register(); got != 1 {
		t.Fatalf("expected next fresh id 1, got %d", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	id := r.Register()
	snap := r.Snapshot()
	entry := snap[id]
	entry.X = 999
	snap[id] = entry

	if got := r.Snapshot()[id].X; got != 0 {
		t.Fatalf("mutating a snapshot leaked into the registry: x=%v", got)
	}
}
