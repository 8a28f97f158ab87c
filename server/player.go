package server

import "time"

// Facing 面向方向，直接沿用線路上的字串表示
const (
	FacingUp    = "up"
	FacingDown  = "down"
	FacingLeft  = "left"
	FacingRight = "right"
)

// DefaultFacing 註冊時的預設面向
const DefaultFacing = FacingDown

// PlayerInfo 廣播給客戶端的玩家狀態（players_update 內容）
type PlayerInfo struct {
	ID     int     `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Map    string  `json:"map"`
	Dir    string  `json:"dir"`
	Moving bool    `json:"moving"`
}

// playerState 伺服器權威狀態：公開欄位加上閒置判定用的時間戳
type playerState struct {
	PlayerInfo
	lastUpdate time.Time
}

// apply 套用一次更新；僅在欄位真的變動時推進 lastUpdate，
// 避免 no-op 更新讓閒置玩家看起來還活著
func (p *playerState) apply(x, y float64, mapName, dir string, moving bool) {
	if x != p.X || y != p.Y || mapName != p.Map || dir != p.Dir || moving != p.Moving {
		p.lastUpdate = time.Now()
	}
	p.X = x
	p.Y = y
	p.Map = mapName
	p.Dir = dir
	p.Moving = moving
}
