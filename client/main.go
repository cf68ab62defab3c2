package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mahaj/community-chat/pkg/model"
)

type LoginResponse struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

func login(apiAddr, email, password string) (LoginResponse, error) {
	reqBody, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return LoginResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return LoginResponse{}, fmt.Errorf("login failed: %s", string(body))
	}

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return LoginResponse{}, err
	}
	return loginResp, nil
}

func send(c *websocket.Conn, event model.EventType, data any) error {
	frame, err := model.Encode(event, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, frame)
}

func render(frame []byte) {
	var env model.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		log.Printf("Received raw: %s", frame)
		return
	}

	switch env.Event {
	case model.EventLoadMessages:
		var history []model.StoredMessage
		if err := json.Unmarshal(env.Data, &history); err != nil {
			log.Printf("Bad history: %v", err)
			return
		}
		for _, m := range history {
			fmt.Printf("\r[%s] %s: %s\n", m.SentAt.Local().Format(time.Kitchen), m.AuthorName, m.Text)
		}
	case model.EventNewMessage:
		var m model.NewMessage
		if err := json.Unmarshal(env.Data, &m); err == nil {
			fmt.Printf("\r%s: %s\n", m.Name, m.Message)
		}
	case model.EventError:
		var e model.ErrorPayload
		if err := json.Unmarshal(env.Data, &e); err == nil {
			fmt.Printf("\rerror: %s\n", e.Message)
		}
	default:
		log.Printf("Received %s: %s", env.Event, env.Data)
	}
	fmt.Print("> ")
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	email := flag.String("email", "", "account email")
	password := flag.String("password", "", "account password")
	community := flag.String("community", "general", "community to join")
	flag.Parse()

	// 1. Login to get token
	log.Printf("Logging in as %s...", *email)
	session, err := login(*apiAddr, *email, *password)
	if err != nil {
		log.Fatal("Login failed:", err)
	}
	log.Printf("Login successful as %s (%s)", session.Name, session.ID)

	// 2. Connect to WebSocket; the token travels with every event
	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// 3. Start goroutine to read frames
	go func() {
		defer close(done)
		for {
			_, frame, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}
			render(frame)
		}
	}()

	if err := send(c, model.EventJoin, model.JoinRequest{Community: *community, Token: session.Token}); err != nil {
		log.Fatal("join:", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	// 4. Read from stdin and send messages
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := scanner.Text()
			if text == "" {
				fmt.Print("> ")
				continue
			}

			if text == "/quit" {
				interrupt <- os.Interrupt
				return
			}

			err := send(c, model.EventMessage, model.MessageRequest{Community: *community, Message: text, Token: session.Token})
			if err != nil {
				log.Println("write:", err)
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("interrupt")

			// Cleanly close the connection by sending a close message and then
			// waiting (with timeout) for the server to close the connection.
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("write close:", err)
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
