package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/gamelobby/lobby-server/internal/handlers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// apiKeyGate は共有シークレットによる入口の認可を行います
// ルーム状態機械の認可（credentials）とは独立した、デプロイ時のオプション機構です
func apiKeyGate(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get("X-Api-Key")
			if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"message":"invalid api key"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func NewRouter(h *handlers.RoomHandler, wsHandler *handlers.WebSocketHandler, allowedOrigins []string, apiKey string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Api-Key"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/games", func(r chi.Router) {
		// WebSocketはブラウザからヘッダーを付けられないため共有シークレットの対象外
		// 接続時にプレイヤー資格情報を検証する
		r.Get("/{gameName}/{roomId}/ws", wsHandler.HandleWebSocket)

		r.Group(func(r chi.Router) {
			if apiKey != "" {
				r.Use(apiKeyGate(apiKey))
			}
			r.Get("/", h.Games)
			r.Post("/{gameName}/create", h.Create)
			r.Get("/{gameName}", h.List)
			r.Get("/{gameName}/{roomId}", h.Get)
			r.Post("/{gameName}/{roomId}/join", h.Join)
			r.Post("/{gameName}/{roomId}/leave", h.Leave)
			r.Post("/{gameName}/{roomId}/update", h.Update)
			r.Post("/{gameName}/{roomId}/rename", h.Rename) // 非推奨の互換エンドポイント
			r.Post("/{gameName}/{roomId}/playAgain", h.PlayAgain)
			r.Post("/{gameName}/{roomId}/rejoin", h.Rejoin)
			r.Post("/{gameName}/{roomId}/teams/create", h.CreateTeams)
			r.Post("/{gameName}/{roomId}/teams/update/leader/{teamId}", h.RotateLeader)
		})
	})

	return r
}
