// Package stream fans live tracking events out to websocket clients,
// relaying through Redis pub/sub so every API instance sees every device.
package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const relayPattern = "stream:*:events"

type Hub struct {
	id      string
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	cancel context.CancelFunc
	done   chan struct{}
}

type Client struct {
	DeviceID string
	Send     chan []byte
}

// Envelope is the message shape delivered to websocket clients.
type Envelope struct {
	Type     string          `json:"type"`
	DeviceID string          `json:"device_id"`
	SentAt   time.Time       `json:"sent_at"`
	Data     json.RawMessage `json:"data"`
}

type relayMessage struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		id:      uuid.NewString(),
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
		done:    make(chan struct{}),
	}

	if redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		ready := make(chan struct{})
		go h.subscribeRedis(ctx, ready)
		<-ready
	} else {
		close(h.done)
	}
	return h
}

func (h *Hub) Register(deviceID string) *Client {
	client := &Client{
		DeviceID: deviceID,
		Send:     make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[deviceID] == nil {
		h.clients[deviceID] = map[*Client]struct{}{}
	}
	h.clients[deviceID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if deviceClients, ok := h.clients[client.DeviceID]; ok {
		delete(deviceClients, client)
		if len(deviceClients) == 0 {
			delete(h.clients, client.DeviceID)
		}
	}
	close(client.Send)
}

// Publish wraps payload in an Envelope of the given type and broadcasts it.
func (h *Hub) Publish(deviceID, kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("type", kind).Error("stream payload encode failed")
		return
	}
	msg, _ := json.Marshal(Envelope{
		Type:     kind,
		DeviceID: deviceID,
		SentAt:   time.Now().UTC(),
		Data:     data,
	})
	h.Broadcast(deviceID, msg)
}

// Broadcast delivers payload to local clients and relays it to other
// instances. Slow clients drop messages rather than block.
func (h *Hub) Broadcast(deviceID string, payload []byte) {
	h.deliver(deviceID, payload)

	if h.redis != nil {
		msg, _ := json.Marshal(relayMessage{Origin: h.id, Payload: payload})
		err := h.redis.Publish(context.Background(), redisChannel(deviceID), msg).Err()
		if err != nil {
			logrus.WithField("device_id", deviceID).WithError(err).Warn("redis publish failed")
		}
	}
}

func (h *Hub) deliver(deviceID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[deviceID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, ready chan<- struct{}) {
	defer close(h.done)
	pubsub := h.redis.PSubscribe(ctx, relayPattern)
	defer pubsub.Close()
	// wait for the subscription so publishes right after NewHub are seen
	if _, err := pubsub.Receive(ctx); err != nil {
		logrus.WithError(err).Warn("redis relay subscribe failed")
	}
	close(ready)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var relay relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &relay); err != nil || relay.Origin == h.id {
				continue
			}
			h.deliver(deviceIDFromChannel(msg.Channel), relay.Payload)
		}
	}
}

// Close stops the redis relay.
func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
	<-h.done
}

func redisChannel(deviceID string) string {
	return "stream:" + deviceID + ":events"
}

func deviceIDFromChannel(ch string) string {
	// stream:{device}:events
	const prefix = "stream:"
	const suffix = ":events"
	if len(ch) <= len(prefix)+len(suffix) || !strings.HasPrefix(ch, prefix) || !strings.HasSuffix(ch, suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
