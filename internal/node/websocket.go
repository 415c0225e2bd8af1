package node

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/coldbell/predictchain/internal/ledger"
)

// Channels are "account.<pubkey>" for raw account updates and
// "market.<pubkey>" for decoded market entries.
const (
	accountChannelPrefix = "account."
	marketChannelPrefix  = "market."
)

const (
	defaultPingInterval = 30 * time.Second
	websocketWriteWait  = 10 * time.Second
)

var errUnknownChannel = errors.New("channel must be account.<pubkey> or market.<pubkey>")

type websocketSubscribeRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type websocketEnvelope struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Slot    uint64 `json:"slot,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	TS      int64  `json:"ts"`
}

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

func (s *Service) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	upgrader := websocketUpgrader
	upgrader.CheckOrigin = func(req *http.Request) bool {
		origin := strings.TrimSpace(req.Header.Get("Origin"))
		return s.isOriginAllowed(origin)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("conn_id", uuid.NewString())
	logger.Debug("websocket connected", "remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, unsubscribe := s.bank.Subscribe(256)
	defer unsubscribe()

	subs := newSubscriptionSet()
	acks := make(chan websocketEnvelope, 16)
	readErrCh := make(chan error, 1)
	go s.websocketReadLoop(ctx, conn, subs, acks, readErrCh)

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(websocketWriteWait)); err != nil {
				logger.Debug("websocket ping failed", "err", err)
				return
			}
		case err := <-readErrCh:
			if err != nil {
				logger.Debug("websocket read loop ended", "err", err)
			}
			return
		case ack := <-acks:
			if err := writeWebsocketJSON(conn, ack); err != nil {
				return
			}
		case update, ok := <-updates:
			if !ok {
				return
			}
			for _, envelope := range s.envelopesFor(subs, update) {
				if err := writeWebsocketJSON(conn, envelope); err != nil {
					return
				}
			}
		}
	}
}

func (s *Service) envelopesFor(subs *subscriptionSet, update ledger.Update) []websocketEnvelope {
	var out []websocketEnvelope
	now := time.Now().Unix()

	channel := accountChannelPrefix + update.Key.String()
	if subs.Has(channel) {
		out = append(out, websocketEnvelope{
			Type:    "event",
			Channel: channel,
			Slot:    update.Slot,
			Data:    newAccountResponse(update.Key, update.Account),
			TS:      now,
		})
	}

	channel = marketChannelPrefix + update.Key.String()
	if subs.Has(channel) {
		market, err := s.newMarketResponse(update.Key, update.Account)
		if err != nil {
			out = append(out, websocketEnvelope{Type: "error", Channel: channel, Slot: update.Slot, Error: err.Error(), TS: now})
		} else {
			out = append(out, websocketEnvelope{Type: "event", Channel: channel, Slot: update.Slot, Data: market, TS: now})
		}
	}
	return out
}

func (s *Service) websocketReadLoop(ctx context.Context, conn *websocket.Conn, subs *subscriptionSet, acks chan<- websocketEnvelope, readErrCh chan<- error) {
	// Peers must answer the main loop's pings within three intervals.
	pongWait := 3 * s.pingInterval
	conn.SetReadLimit(1024 * 1024)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err == nil {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}
	for {
		select {
		case <-ctx.Done():
			readErrCh <- nil
			return
		default:
		}
		var message websocketSubscribeRequest
		if err := conn.ReadJSON(&message); err != nil {
			readErrCh <- err
			return
		}
		message.Type = strings.ToLower(strings.TrimSpace(message.Type))
		message.Channel = strings.TrimSpace(message.Channel)

		ack := websocketEnvelope{Channel: message.Channel, TS: time.Now().Unix()}
		if err := validateChannel(message.Channel); err != nil {
			ack.Type = "error"
			ack.Error = err.Error()
		} else {
			switch message.Type {
			case "subscribe":
				subs.Add(message.Channel)
				ack.Type = "subscribed"
			case "unsubscribe":
				subs.Remove(message.Channel)
				ack.Type = "unsubscribed"
			default:
				ack.Type = "error"
				ack.Error = "type must be subscribe or unsubscribe"
			}
		}

		select {
		case acks <- ack:
		case <-ctx.Done():
			readErrCh <- nil
			return
		}
	}
}

func validateChannel(channel string) error {
	var raw string
	switch {
	case strings.HasPrefix(channel, accountChannelPrefix):
		raw = strings.TrimPrefix(channel, accountChannelPrefix)
	case strings.HasPrefix(channel, marketChannelPrefix):
		raw = strings.TrimPrefix(channel, marketChannelPrefix)
	default:
		return errUnknownChannel
	}
	_, err := solana.PublicKeyFromBase58(raw)
	return err
}

func writeWebsocketJSON(conn *websocket.Conn, payload websocketEnvelope) error {
	if err := conn.SetWriteDeadline(time.Now().Add(websocketWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(payload)
}

type subscriptionSet struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{items: map[string]struct{}{}}
}

func (s *subscriptionSet) Add(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[channel] = struct{}{}
}

func (s *subscriptionSet) Remove(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, channel)
}

func (s *subscriptionSet) Has(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[channel]
	return ok
}
