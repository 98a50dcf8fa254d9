package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	baseURL   = flag.String("base", "http://localhost:8080", "server base URL")
	pairCount = flag.Int("pairs", 100, "number of account pairs") // ⚠️ Start small. Database might choke on 1000 immediately.
	msgCount  = flag.Int("msgs", 20, "messages per account")
)

type profile struct {
	ID         uuid.UUID `json:"id"`
	UniqueCode string    `json:"unique_code"`
}

type loginResponse struct {
	Token   string  `json:"access_token"`
	Profile profile `json:"profile"`
}

type openChatResponse struct {
	ChatID  uuid.UUID `json:"chat_id"`
	Created bool      `json:"created"`
}

type frame struct {
	Type    string    `json:"type"`
	ChatID  uuid.UUID `json:"chat_id"`
	Content string    `json:"content,omitempty"`
	Message *struct {
		ID       uuid.UUID `json:"id"`
		SenderID uuid.UUID `json:"sender_id"`
	} `json:"message,omitempty"`
}

type stats struct {
	pairs     atomic.Int64
	diverged  atomic.Int64 // both sides got different chats: must stay 0
	created   atomic.Int64
	sent      atomic.Int64
	delivered atomic.Int64
}

func main() {
	flag.Parse()
	run := uuid.NewString()[:8]

	log.Printf("🔥 STARTING STRESS TEST: %d accounts, %d messages each...", *pairCount*2, *msgCount)
	var st stats
	var wg sync.WaitGroup

	// Pairs: account a of pair i talks to account b of pair i.
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(run, pairID, &st)
		}(i)
	}

	wg.Wait()
	log.Printf("✅ LOAD TEST COMPLETE pairs=%d created=%d diverged=%d sent=%d delivered=%d",
		st.pairs.Load(), st.created.Load(), st.diverged.Load(), st.sent.Load(), st.delivered.Load())
}

func runPair(run string, pairID int, st *stats) {
	pass := "password123"
	a, okA := authenticate(fmt.Sprintf("lt_%s_%d_a@example.com", run, pairID), pass)
	b, okB := authenticate(fmt.Sprintf("lt_%s_%d_b@example.com", run, pairID), pass)
	if !okA || !okB {
		return
	}

	// Both sides open the chat at the same moment; they must land in the
	// same one.
	var chatA, chatB openChatResponse
	var race sync.WaitGroup
	race.Add(2)
	go func() { defer race.Done(); chatA = openChat(a.Token, b.Profile.UniqueCode) }()
	go func() { defer race.Done(); chatB = openChat(b.Token, a.Profile.UniqueCode) }()
	race.Wait()

	if chatA.ChatID == uuid.Nil || chatB.ChatID == uuid.Nil {
		return
	}
	st.pairs.Add(1)
	if chatA.ChatID != chatB.ChatID {
		st.diverged.Add(1)
		log.Printf("❌ pair %d diverged: %s vs %s", pairID, chatA.ChatID, chatB.ChatID)
		return
	}
	if chatA.Created {
		st.created.Add(1)
	}
	if chatB.Created {
		st.created.Add(1)
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, a, chatA.ChatID, st)
	go spamChat(&wsWg, b, chatA.ChatID, st)
	wsWg.Wait()
}

// authenticate registers and logs in with the code the server assigned.
func authenticate(email, password string) (loginResponse, bool) {
	resp, err := postJSON("/api/auth/register", "", map[string]string{"email": email, "password": password})
	if err != nil {
		log.Printf("❌ Register Failed [%s]: %v", email, err)
		return loginResponse{}, false
	}
	var p profile
	json.NewDecoder(resp.Body).Decode(&p)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		log.Printf("❌ Register Failed [%s]: status %d", email, resp.StatusCode)
		return loginResponse{}, false
	}

	resp, err = postJSON("/api/auth/login", "", map[string]string{"code": p.UniqueCode, "password": password})
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", p.UniqueCode, err)
		return loginResponse{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ Login Failed [%s]: status %d", p.UniqueCode, resp.StatusCode)
		return loginResponse{}, false
	}

	var data loginResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data, data.Token != ""
}

func openChat(token, code string) openChatResponse {
	resp, err := postJSON("/api/chats", token, map[string]string{"code": code})
	if err != nil {
		log.Printf("❌ Open Chat Failed: %v", err)
		return openChatResponse{}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Printf("❌ Open Chat Failed: status %d", resp.StatusCode)
		return openChatResponse{}
	}

	var data openChatResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data
}

func spamChat(wg *sync.WaitGroup, me loginResponse, chatID uuid.UUID, st *stats) {
	defer wg.Done()

	wsURL := "ws" + strings.TrimPrefix(*baseURL, "http") + "/ws?token=" + me.Token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", me.Profile.UniqueCode, err)
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(frame{Type: "subscribe", ChatID: chatID}); err != nil {
		return
	}

	// Count messages from the other side until the socket goes quiet.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Type == "message" && f.Message != nil && f.Message.SenderID != me.Profile.ID {
				st.delivered.Add(1)
			}
		}
	}()

	for i := 0; i < *msgCount; i++ {
		err := conn.WriteJSON(frame{
			Type:    "send",
			ChatID:  chatID,
			Content: fmt.Sprintf("LoadTest Msg %d from %s", i, me.Profile.UniqueCode),
		})
		if err != nil {
			log.Printf("❌ Send Fail [%s]: %v", me.Profile.UniqueCode, err)
			break
		}
		st.sent.Add(1)
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}
	<-done
}

func postJSON(endpoint, token string, data any) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	req, err := http.NewRequest(http.MethodPost, *baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}
