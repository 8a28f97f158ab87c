package client

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// 線路格式與伺服器端一致：帶 "type" 判別欄位的 JSON 文字幀

type envelope struct {
	Type string `json:"type"`
}

// serverMessage 伺服器入站訊息的封閉集合
type serverMessage interface{ isServerMessage() }

type registeredMessage struct {
	ID    int    `json:"id"`
	Token string `json:"token"`
}

type playersUpdateMessage struct {
	// 伺服器以十進位字串 id 當 key；值沿用伺服器欄位名 dir / moving
	Players map[string]struct {
		ID     int     `json:"id"`
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Map    string  `json:"map"`
		Dir    string  `json:"dir"`
		Moving bool    `json:"moving"`
	} `json:"players"`
	Timestamp float64 `json:"timestamp"`
}

type chatUpdateMessage struct {
	Messages []ChatMessage `json:"messages"`
}

type serverErrorMessage struct {
	Message string `json:"message"`
}

func (registeredMessage) isServerMessage()    {}
func (playersUpdateMessage) isServerMessage() {}
func (chatUpdateMessage) isServerMessage()    {}
func (serverErrorMessage) isServerMessage()   {}

// decodeServerMessage 解析一則伺服器訊息
func decodeServerMessage(data []byte) (serverMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	switch env.Type {
	case "registered":
		var m registeredMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "players_update":
		var m playersUpdateMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "chat_update":
		var m chatUpdateMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "error":
		var m serverErrorMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}

// remotePlayers 轉成渲染層用的清單，略過自己的 id
func (m playersUpdateMessage) remotePlayers(selfID int) []RemotePlayer {
	out := make([]RemotePlayer, 0, len(m.Players))
	for key, p := range m.Players {
		id := p.ID
		if id == 0 && key != "0" {
			// 防守：有些欄位缺 id 時退回用 key
			if parsed, err := strconv.Atoi(key); err == nil {
				id = parsed
			}
		}
		if id == selfID {
			continue
		}
		out = append(out, RemotePlayer{
			ID:        id,
			X:         p.X,
			Y:         p.Y,
			Map:       p.Map,
			Direction: p.Dir,
			IsMoving:  p.Moving,
		})
	}
	return out
}

// 出站訊息（客戶端 → 伺服器），欄位名是客戶端慣例 direction / is_moving

type playerUpdateOut struct {
	Type      string  `json:"type"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Map       string  `json:"map"`
	Direction string  `json:"direction"`
	IsMoving  bool    `json:"is_moving"`
}

type chatSendOut struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
