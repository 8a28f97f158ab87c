package server

import (
	"sync"
	"time"
)

// Registry 維護連線 session 與其權威玩家狀態
// id 單調遞增、行程存活期間不重複；所有變更都在同一把鎖底下
type Registry struct {
	mu      sync.Mutex
	players map[int]*playerState
	nextID  int
}

// NewRegistry 建立空的 registry
func NewRegistry() *Registry {
	return &Registry{players: make(map[int]*playerState)}
}

// Register 配置下一個 id 並建立預設狀態，永不失敗
func (r *Registry) Register() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.players[id] = &playerState{
		PlayerInfo: PlayerInfo{ID: id, Dir: DefaultFacing},
		lastUpdate: time.Now(),
	}
	return id
}

// Restore 以既有 id 重建預設狀態，供 token 續連使用
// id 必須是先前配出去、且目前不在線上的，否則回傳 false
func (r *Registry) Restore(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= r.nextID {
		return false
	}
	if _, ok := r.players[id]; ok {
		return false
	}
	r.players[id] = &playerState{
		PlayerInfo: PlayerInfo{ID: id, Dir: DefaultFacing},
		lastUpdate: time.Now(),
	}
	return true
}

// Unregister 移除狀態；回傳原本是否存在
func (r *Registry) Unregister(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.players[id]; !ok {
		return false
	}
	delete(r.players, id)
	return true
}

// Update 更新玩家狀態。id 不存在（例如已被移除）回傳 false，
// 這是正常的競態而非錯誤，呼叫端不需告警
func (r *Registry) Update(id int, x, y float64, mapName, dir string, moving bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return false
	}
	p.apply(x, y, mapName, dir, moving)
	return true
}

// Snapshot 回傳某一時間點的一致性拷貝，供廣播序列化使用
func (r *Registry) Snapshot() map[int]PlayerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]PlayerInfo, len(r.players))
	for id, p := range r.players {
		out[id] = p.PlayerInfo
	}
	return out
}

// Count 目前在線人數
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// EvictIdle 掃除 lastUpdate 距今 ≥ threshold 的玩家，回傳被移除的 id
func (r *Registry) EvictIdle(threshold time.Duration) []int {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []int
	for id, p := range r.players {
		if now.Sub(p.lastUpdate) >= threshold {
			evicted = append(evicted, id)
		}
	}
	for _, id := range evicted {
		delete(r.players, id)
	}
	return evicted
}
