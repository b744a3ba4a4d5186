package stream

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	client := hub.Register("dev-1")
	defer hub.Unregister(client)

	hub.Broadcast("dev-1", []byte("hello"))

	select {
	case msg := <-client.Send:
		if string(msg) != "hello" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for message")
	}
}

func TestHubPublishEnvelope(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	client := hub.Register("dev-1")
	defer hub.Unregister(client)

	hub.Publish("dev-1", "snapshot", map[string]float64{"total_distance_m": 111.2})

	select {
	case msg := <-client.Send:
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.Type != "snapshot" || env.DeviceID != "dev-1" {
			t.Fatalf("unexpected envelope %+v", env)
		}
		var data map[string]float64
		_ = json.Unmarshal(env.Data, &data)
		if data["total_distance_m"] != 111.2 {
			t.Fatalf("unexpected payload %s", env.Data)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for envelope")
	}
}

func TestHubPublishUnencodable(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	client := hub.Register("dev-1")
	defer hub.Unregister(client)

	hub.Publish("dev-1", "snapshot", make(chan int))
	select {
	case <-client.Send:
		t.Fatalf("expected nothing delivered")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubHelpers(t *testing.T) {
	ch := redisChannel("abc")
	if ch != "stream:abc:events" {
		t.Fatalf("unexpected channel %q", ch)
	}
	if deviceIDFromChannel(ch) != "abc" {
		t.Fatalf("unexpected device id")
	}
	if deviceIDFromChannel("bad") != "" || deviceIDFromChannel("other:abc:events") != "" {
		t.Fatalf("expected empty device id")
	}
}

func TestUnregisterCloses(t *testing.T) {
	hub := NewHub(nil)
	client := hub.Register("dev-2")
	hub.Unregister(client)
	_, ok := <-client.Send
	if ok {
		t.Fatalf("expected channel closed")
	}
}

func TestHubRedisRelayBetweenInstances(t *testing.T) {
	s := miniredis.RunT(t)
	redisA := redis.NewClient(&redis.Options{Addr: s.Addr()})
	redisB := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer redisA.Close()
	defer redisB.Close()

	hubA := NewHub(redisA)
	defer hubA.Close()
	hubB := NewHub(redisB)
	defer hubB.Close()

	local := hubA.Register("dev-redis")
	defer hubA.Unregister(local)
	remote := hubB.Register("dev-redis")
	defer hubB.Unregister(remote)

	hubA.Broadcast("dev-redis", []byte("ping"))

	select {
	case msg := <-remote.Send:
		if string(msg) != "ping" {
			t.Fatalf("unexpected relayed message %q", msg)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for relay")
	}

	select {
	case msg := <-local.Send:
		if string(msg) != "ping" {
			t.Fatalf("unexpected local message")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for local delivery")
	}
	// the relay must not echo the message back to its origin
	select {
	case msg := <-local.Send:
		t.Fatalf("unexpected echo %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubRedisPublishError(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	server.Close()
	defer client.Close()

	hub := NewHub(client)
	defer hub.Close()
	clientNode := hub.Register("dev-bad")
	defer hub.Unregister(clientNode)

	hub.Broadcast("dev-bad", []byte("ping"))
	select {
	case msg := <-clientNode.Send:
		if string(msg) != "ping" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("expected local delivery despite redis failure")
	}
}
