package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gamelobby/lobby-server/internal/config"
	"github.com/gamelobby/lobby-server/internal/game"
	"github.com/gamelobby/lobby-server/internal/handlers"
	httpx "github.com/gamelobby/lobby-server/internal/http"
	"github.com/gamelobby/lobby-server/internal/repo"
	"github.com/gamelobby/lobby-server/internal/service"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		PoolSize:     10,              // 接続プールサイズ
		MinIdleConns: 5,               // 最小アイドル接続数
		MaxRetries:   3,               // リトライ回数
		DialTimeout:  5 * time.Second, // 接続タイムアウト
		ReadTimeout:  3 * time.Second, // 読み込みタイムアウト
		WriteTimeout: 3 * time.Second, // 書き込みタイムアウト
		PoolTimeout:  4 * time.Second, // プールからの取得タイムアウト
	})

	// Redis接続確認
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	log.Println("connected to redis")

	// ゲーム定義の登録。ルール状態を持たないデフォルト定義だけを組み込みで持つ
	games := game.NewRegistry()
	games.Register("free-for-all", game.FreeForAll{})

	rr := repo.NewRedisRoomRepo(rdb)
	idg := service.NewRoomIDGenerator()
	creds := service.NewCredentialIssuer()
	teams := service.NewTeamFormation(nil)
	svc := service.NewRoomService(rr, games, idg, creds, teams, cfg.RoomTTL)

	hub := handlers.NewLobbyHub()
	h := handlers.NewRoomHandler(svc, hub)
	ws := handlers.NewWebSocketHandler(svc, hub)
	router := httpx.NewRouter(h, ws, cfg.AllowedOrigin, cfg.APIKey)

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown用のシグナルチャネル
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// サーバーを別goroutineで起動
	go func() {
		log.Printf("listening on %s", cfg.APIAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// シャットダウンシグナルを待つ
	<-sigChan
	log.Println("shutdown signal received, shutting down gracefully...")

	// 30秒のタイムアウトでGraceful Shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	log.Println("server stopped")
}
