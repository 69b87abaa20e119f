package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

// Load generator: drives user pairs through authenticate -> join_room ->
// send_room_message over the websocket envelope protocol. Tokens are minted
// locally with the same secret the server runs with.

var (
	wsURL     = flag.String("url", "ws://localhost:8080/ws", "websocket endpoint")
	secret    = flag.String("secret", "dev-secret", "JWT secret the server was started with")
	pairCount = flag.Int("pairs", 50, "user pairs to simulate")
	msgCount  = flag.Int("messages", 20, "messages per user")
)

func main() {
	flag.Parse()
	log.Printf("starting load test: %d users, %d messages each", *pairCount*2, *msgCount)

	var wg sync.WaitGroup
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}
	wg.Wait()
	log.Println("load test complete")
}

func runPair(pairID int) {
	roomID := fmt.Sprintf("loadtest-room-%d", pairID)
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamRoom(&wsWg, userA, roomID)
	go spamRoom(&wsWg, userB, roomID)
	wsWg.Wait()
}

func spamRoom(wg *sync.WaitGroup, userID, roomID string) {
	defer wg.Done()

	token, err := mintToken(userID)
	if err != nil {
		log.Printf("mint token [%s]: %v", userID, err)
		return
	}

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", *wsURL, token), nil)
	if err != nil {
		log.Printf("ws connect [%s]: %v", userID, err)
		return
	}
	defer conn.Close()

	// Drain server frames so the write buffer never backs up.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send(conn, "authenticate", map[string]string{"userId": userID, "username": userID})
	send(conn, "join_room", map[string]string{"roomId": roomID, "userId": userID, "username": userID})

	for i := 0; i < *msgCount; i++ {
		err := send(conn, "send_room_message", map[string]string{
			"roomId":     roomID,
			"senderId":   userID,
			"senderName": userID,
			"content":    fmt.Sprintf("loadtest msg %d from %s", i, userID),
		})
		if err != nil {
			log.Printf("send [%s]: %v", userID, err)
			break
		}
		// Small sleep to prevent an instant localhost bottleneck.
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("%s finished sending %d msgs", userID, *msgCount)
}

func send(conn *websocket.Conn, event string, data any) error {
	raw, _ := json.Marshal(data)
	return conn.WriteJSON(map[string]any{
		"event": event,
		"data":  json.RawMessage(raw),
	})
}

func mintToken(userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       userID,
		"username": userID,
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	return token.SignedString([]byte(*secret))
}
