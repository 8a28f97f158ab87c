package server

import (
	"encoding/json"
	"fmt"
)

// 線路訊息一律是帶 "type" 判別欄位的 JSON 文字幀，
// 先解 envelope 再依型別解出對應 struct，給 dispatch 一個可窮舉的 union

// envelope 只取判別欄位
type envelope struct {
	Type string `json:"type"`
}

// clientMessage 客戶端入站訊息的封閉集合
type clientMessage interface{ isClientMessage() }

// PlayerUpdateMessage 位置/狀態更新
// 客戶端欄位名是 direction / is_moving，伺服器內部轉成 dir / moving
type PlayerUpdateMessage struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Map      string  `json:"map"`
	Dir      string  `json:"direction"`
	IsMoving bool    `json:"is_moving"`
}

// ChatSendMessage 送出聊天訊息
type ChatSendMessage struct {
	Text string `json:"text"`
}

func (PlayerUpdateMessage) isClientMessage() {}
func (ChatSendMessage) isClientMessage()     {}

// errInvalidJSON 對應線路上的 error{invalid_json} 回覆
var errInvalidJSON = fmt.Errorf("invalid_json")

// decodeClientMessage 解析一個入站文字幀
// envelope 解不開回 errInvalidJSON；欄位型別錯誤只作廢這一則訊息
func decodeClientMessage(data []byte) (clientMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errInvalidJSON
	}
	switch env.Type {
	case "player_update":
		var m PlayerUpdateMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad player_update: %v", err)
		}
		return m, nil
	case "chat_send":
		var m ChatSendMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad chat_send: %v", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}

// 出站訊息（伺服器 → 客戶端）

type registeredMessage struct {
	Type  string `json:"type"`
	ID    int    `json:"id"`
	Token string `json:"token"`
}

type playersUpdateMessage struct {
	Type      string             `json:"type"`
	Players   map[int]PlayerInfo `json:"players"`
	Timestamp float64            `json:"timestamp"`
}

type chatUpdateMessage struct {
	Type     string        `json:"type"`
	Messages []ChatMessage `json:"messages"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newRegisteredMessage(id int, token string) registeredMessage {
	return registeredMessage{Type: "registered", ID: id, Token: token}
}

func newPlayersUpdateMessage(players map[int]PlayerInfo, ts float64) playersUpdateMessage {
	return playersUpdateMessage{Type: "players_update", Players: players, Timestamp: ts}
}

func newChatUpdateMessage(msgs []ChatMessage) chatUpdateMessage {
	return chatUpdateMessage{Type: "chat_update", Messages: msgs}
}

func newErrorMessage(msg string) errorMessage {
	return errorMessage{Type: "error", Message: msg}
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// 出站訊息都是本套件定義的 struct，序列化失敗屬程式錯誤
		panic(err)
	}
	return b
}
