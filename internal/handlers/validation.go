package handlers

import "fmt"

// validateRoomId はルームIDのバリデーションを行います
func validateRoomId(roomId string) error {
	if normalizeID(roomId) == "" {
		return fmt.Errorf("roomId required")
	}
	return nil
}

// validateGameName はゲーム名のバリデーションを行います
func validateGameName(name string) error {
	if normalizeID(name) == "" {
		return fmt.Errorf("game name required")
	}
	return nil
}

// validatePlayerId はスロット番号のバリデーションを行います
// JSONで省略された場合（nil）はエラーを返します
func validatePlayerId(playerId *int) error {
	if playerId == nil {
		return fmt.Errorf("playerID required")
	}
	return nil
}

// validatePlayerName はプレイヤー名のバリデーションを行います
func validatePlayerName(name string) error {
	if normalizeID(name) == "" {
		return fmt.Errorf("playerName required")
	}
	return nil
}
