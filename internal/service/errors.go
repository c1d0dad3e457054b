package service

import (
	"errors"
	"fmt"
)

// エラー分類。ハンドラー側はこの4種でHTTPステータスを決定します
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAuthorization = errors.New("authorization failed")
)

// カスタムエラー定義
var (
	ErrUnknownGame            = fmt.Errorf("%w: unknown game", ErrValidation)
	ErrRoomNotFound           = fmt.Errorf("%w: room not found", ErrNotFound)
	ErrPlayerNotFound         = fmt.Errorf("%w: player not found", ErrNotFound)
	ErrTeamNotFound           = fmt.Errorf("%w: team not found", ErrNotFound)
	ErrSlotTaken              = fmt.Errorf("%w: player slot already taken", ErrConflict)
	ErrNameNotFound           = fmt.Errorf("%w: no seated player with that name", ErrConflict)
	ErrCredentialMismatch     = fmt.Errorf("%w: invalid credentials", ErrAuthorization)
	ErrRoomIDGenerationFailed = errors.New("failed to generate unique room ID after multiple attempts")
)
