package service

import (
	"crypto/subtle"

	"github.com/google/uuid"
)

// CredentialIssuer は着席時の資格情報トークンを発行するインターフェース
// トークン自体が唯一の真実で、このコンポーネントは状態を持ちません
type CredentialIssuer interface {
	Issue() (string, error) // 推測不能なトークンを発行
}

// uuidIssuer はCredentialIssuerのデフォルト実装
type uuidIssuer struct{}

func (uuidIssuer) Issue() (string, error) { return uuid.NewString(), nil }

// NewCredentialIssuer はUUIDベースのデフォルト発行器を作成します
func NewCredentialIssuer() CredentialIssuer {
	return uuidIssuer{}
}

// ValidateCredentials は提示された資格情報と保存済みの値を比較します
// タイミング攻撃を避けるため定数時間で比較します
// 保存済みの値が空（空席）の場合は常にfalseを返します
func ValidateCredentials(presented, stored string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
}
