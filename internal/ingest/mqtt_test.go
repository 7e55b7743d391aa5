package ingest

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/freshness-monitor/backend/internal/logging"
	"github.com/freshness-monitor/backend/internal/models"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"
)

const testTopic = "annas/esp32/sensor"

// startBroker spins up an in-process MQTT broker on a free local port.
func startBroker(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	broker := mochi.New(nil)
	require.NoError(t, broker.AddHook(&auth.AllowHook{}, nil))
	require.NoError(t, broker.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "test",
		Address: addr,
	})))
	require.NoError(t, broker.Serve())
	t.Cleanup(func() { broker.Close() })
	return addr
}

// newPublisher connects a plain paho client for sending device messages.
func newPublisher(ctx context.Context, t *testing.T, addr string) *paho.Client {
	t.Helper()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	require.NoError(t, err)

	client := paho.NewClient(paho.ClientConfig{ClientID: "device", Conn: conn})
	_, err = client.Connect(ctx, &paho.Connect{ClientID: "device", KeepAlive: 5, CleanStart: true})
	require.NoError(t, err)
	t.Cleanup(func() { client.Disconnect(&paho.Disconnect{}) })
	return client
}

func TestMQTTSubscriber_ProcessesReadings(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	addr := startBroker(t)
	proc := newEngineProcessor()
	sub := NewMQTTSubscriber(MQTTOptions{
		Broker:    "tcp://" + addr,
		Topic:     testTopic,
		QoS:       1,
		KeepAlive: 5,
	}, proc, logging.Discard())

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- sub.Run(runCtx) }()

	select {
	case <-sub.Subscribed():
	case <-ctx.Done():
		t.Fatal("subscriber did not subscribe in time")
	}

	pub := newPublisher(ctx, t, addr)
	for _, payload := range []string{
		`not json`,
		`{"suhu": 27}`,
		`{"suhu": 50, "kelembapan": 65, "mq2": 45, "mq3": 30, "mq135": 40}`,
	} {
		_, err := pub.Publish(ctx, &paho.Publish{Topic: testTopic, QoS: 1, Payload: []byte(payload)})
		require.NoError(t, err)
	}

	select {
	case res := <-proc.got:
		require.Equal(t, models.StatusUnacceptable, res.Status)
		require.Equal(t, 50.0, res.Values[models.ChannelTemperature])
	case <-ctx.Done():
		t.Fatal("no reading was processed")
	}
	require.Equal(t, 1, proc.count(), "bad payloads must be dropped")

	stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestMQTTSubscriber_RunStopsWhileBrokerDown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	sub := NewMQTTSubscriber(MQTTOptions{
		Broker:     addr,
		Topic:      testTopic,
		RetryDelay: 50 * time.Millisecond,
	}, newEngineProcessor(), logging.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, sub.Run(ctx))
}

func TestBrokerAddress(t *testing.T) {
	for in, want := range map[string]string{
		"tcp://localhost:1883": "localhost:1883",
		"mqtt://10.0.0.5:1883": "10.0.0.5:1883",
		"broker.example:8883":  "broker.example:8883",
	} {
		if got := brokerAddress(in); got != want {
			t.Errorf("brokerAddress(%q) = %q, want %q", in, got, want)
		}
	}
}
