package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"nftflip/internal/service"
)

// Manual smoke client: joins a running server's match room with both
// wallets and confirms the challenger deposit. MATCH_ID must point at a
// match awaiting deposit.
func main() {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET not set")
	}
	matchID := os.Getenv("MATCH_ID")
	if matchID == "" {
		log.Fatal("MATCH_ID not set")
	}

	walletA := envOr("WALLET_A", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	walletB := envOr("WALLET_B", "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	port := envOr("APP_PORT", "8080")

	service.InitJWT()
	tokenA, err := service.GenerateJWT(walletA)
	if err != nil {
		log.Fatalf("gen token A: %v", err)
	}
	tokenB, err := service.GenerateJWT(walletB)
	if err != nil {
		log.Fatalf("gen token B: %v", err)
	}

	dialer := websocket.DefaultDialer

	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	connA, _, err := dialer.Dial(fmt.Sprintf("ws://127.0.0.1:%s/ws?token=%s", port, tokenA), nil)
	if err != nil {
		log.Fatalf("dial A: %v", err)
	}
	defer connA.Close()

	connB, _, err := dialer.Dial(fmt.Sprintf("ws://127.0.0.1:%s/ws?token=%s", port, tokenB), nil)
	if err != nil {
		log.Fatalf("dial B: %v", err)
	}
	defer connB.Close()

	join := fmt.Sprintf(`{"type":"join_room","payload":{"match_id":%q}}`, matchID)
	for name, conn := range map[string]*websocket.Conn{"A": connA, "B": connB} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(join)); err != nil {
			log.Fatalf("join %s: %v", name, err)
		}
	}

	deposit := fmt.Sprintf(`{"type":"confirm_deposit","payload":{"match_id":%q,"role":"challenger"}}`, matchID)
	if err := connB.WriteMessage(websocket.TextMessage, []byte(deposit)); err != nil {
		log.Fatalf("deposit B: %v", err)
	}

	drain := func(conn *websocket.Conn, name string) {
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				continue
			}
			log.Printf("%s got: %s", name, string(msg))
		}
	}

	drain(connA, "A")
	drain(connB, "B")

	log.Println("smoke test finished")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
