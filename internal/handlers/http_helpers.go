package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gamelobby/lobby-server/internal/service"
)

// errorResponse はエラーレスポンスの構造
type errorResponse struct {
	Message string `json:"message"` // エラーメッセージ
}

// respondJSON はJSONレスポンスを返します
// payloadがnilの場合は空のレスポンスを返します
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// respondError はエラーレスポンスを返します
func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Message: msg})
}

// writeServiceError はサービス層のエラー分類をHTTPステータスへ写します
// 403: 入力不備・認可失敗 / 404: ルーム・スロット・チームなし / 409: 競合
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownGame):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrAuthorization):
		respondError(w, http.StatusForbidden, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON はリクエストボディからJSONをデコードします
// デコードに失敗した場合は、エラーレスポンスを返してfalseを返します
// 成功した場合はtrueを返します
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	// 最低限の防御: 大きすぎるリクエストを防ぐ（1MB制限）
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB

	dec := json.NewDecoder(r.Body)

	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			respondError(w, http.StatusBadRequest, "invalid JSON payload")
			return false
		}
		respondError(w, http.StatusBadRequest, "bad request")
		return false
	}
	return true
}

// normalizeID はIDの前後の空白を削除して正規化します
func normalizeID(id string) string {
	return strings.TrimSpace(id)
}

// intFrom は緩く型付けされたJSON値から整数を取り出します
// 数値として解釈できない場合は0を返します（numPlayersのデフォルト決定に使用）
func intFrom(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return 0
}
