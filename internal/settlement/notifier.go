package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"shooter-arena/internal/config"
	"shooter-arena/internal/game"
)

const (
	requestTimeout = 10 * time.Second
	maxBackoff     = 60 * time.Second
)

// notification is one queued call to the settlement service.
type notification struct {
	label    string // for logs
	endpoint string
	payload  any
}

// Notifier posts match lifecycle events to the external betting service.
// Calls from the engine are enqueue-only and never block; a single
// dispatcher goroutine owns the wire. When the queue is full the newest
// notification is intentionally dropped.
type Notifier struct {
	baseURL string
	client  *http.Client
	queue   chan notification
	quit    chan struct{}
	wg      sync.WaitGroup

	// Backoff state, dispatcher-only
	currentBackoff time.Duration

	dropped atomic.Uint64
}

var _ game.Settlement = (*Notifier)(nil)

// New creates a notifier for the settlement service at cfg.URL.
// Callers should not construct one at all when the URL is empty.
func New(cfg config.SettlementConfig) *Notifier {
	size := cfg.QueueSize
	if size <= 0 {
		size = 100
	}
	return &Notifier{
		baseURL: cfg.URL,
		client: &http.Client{
			Timeout: requestTimeout,
		},
		queue: make(chan notification, size),
		quit:  make(chan struct{}),
	}
}

// Start begins the dispatcher loop.
func (n *Notifier) Start() {
	n.wg.Add(1)
	go n.dispatcher()
	log.Println("💰 settlement dispatcher started")
}

// Stop drains nothing and shuts down; queued notifications are abandoned.
func (n *Notifier) Stop() {
	close(n.quit)
	n.wg.Wait()
	log.Println("💰 settlement dispatcher stopped")
}

// OpenBetting announces a fresh lobby.
func (n *Notifier) OpenBetting(matchID string) {
	n.enqueue(notification{
		label:    "open " + matchID,
		endpoint: "/betting/open",
		payload: matchRef{
			MatchID:  matchID,
			GameType: game.GameType,
		},
	})
}

// AddBettingAgent registers a joined agent as a bettable contender.
func (n *Notifier) AddBettingAgent(matchID, agentName, wallet string) {
	n.enqueue(notification{
		label:    "agent " + agentName,
		endpoint: "/betting/agents",
		payload: agentRef{
			MatchID:   matchID,
			AgentName: agentName,
			Wallet:    wallet,
		},
	})
}

// CloseBetting locks the betting window at match start.
func (n *Notifier) CloseBetting(matchID string) {
	n.enqueue(notification{
		label:    "close " + matchID,
		endpoint: "/betting/close",
		payload:  matchRef{MatchID: matchID},
	})
}

// ResolveMatch reports the final outcome so bets can pay out.
func (n *Notifier) ResolveMatch(result game.SettlementResult) {
	n.enqueue(notification{
		label:    "resolve " + result.MatchID,
		endpoint: "/betting/resolve",
		payload:  result,
	})
}

type matchRef struct {
	MatchID  string `json:"matchId"`
	GameType string `json:"gameType,omitempty"`
}

type agentRef struct {
	MatchID   string `json:"matchId"`
	AgentName string `json:"agentName"`
	Wallet    string `json:"walletAddress,omitempty"`
}

// enqueue is non-blocking: a full queue drops the newest notification.
func (n *Notifier) enqueue(note notification) {
	select {
	case n.queue <- note:
	default:
		n.dropped.Add(1)
		log.Printf("⚠️ settlement queue full, dropping %s", note.label)
	}
}

// Dropped returns how many notifications were discarded to a full queue.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

// dispatcher is the main send loop.
func (n *Notifier) dispatcher() {
	defer n.wg.Done()

	for {
		select {
		case <-n.quit:
			return
		case note := <-n.queue:
			n.processNote(note)
		}
	}
}

// processNote posts one notification and manages backoff state. Throttled
// and server-side failures back off exponentially; the failed notification
// itself is not retried.
func (n *Notifier) processNote(note notification) {
	status, err := n.send(note)

	if err == nil {
		if n.currentBackoff > 0 {
			n.currentBackoff = 0
			log.Println("✅ settlement service recovered, backoff reset")
		}
		return
	}

	if status == http.StatusTooManyRequests || status >= 500 {
		if n.currentBackoff == 0 {
			n.currentBackoff = 2 * time.Second
		} else {
			n.currentBackoff *= 2
			if n.currentBackoff > maxBackoff {
				n.currentBackoff = maxBackoff
			}
		}
		log.Printf("⚠️ settlement %s got %d, backing off for %v", note.label, status, n.currentBackoff)
		select {
		case <-time.After(n.currentBackoff):
		case <-n.quit:
		}
		return
	}

	log.Printf("⚠️ settlement %s failed: %v", note.label, err)
}

// send posts one notification and returns the HTTP status (0 when the
// request never completed).
func (n *Notifier) send(note notification) (int, error) {
	body, err := json.Marshal(note.payload)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+note.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("settlement request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("settlement API %d: %s", resp.StatusCode, string(msg))
	}

	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
