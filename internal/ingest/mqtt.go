package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/freshness-monitor/backend/internal/evaluator"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MQTTOptions configures the device topic subscription.
type MQTTOptions struct {
	Broker    string // host:port, optionally prefixed with tcp:// or mqtt://
	Topic     string
	ClientID  string
	Username  string
	Password  string
	QoS       byte
	KeepAlive uint16
	// RetryDelay is the pause between reconnect attempts.
	RetryDelay time.Duration
}

// MQTTSubscriber evaluates every reading published on the device topic.
type MQTTSubscriber struct {
	opts MQTTOptions
	proc Processor
	log  logrus.FieldLogger

	subscribed     chan struct{}
	subscribedOnce sync.Once
}

// NewMQTTSubscriber creates a subscriber; call Run to start it.
func NewMQTTSubscriber(opts MQTTOptions, proc Processor, log logrus.FieldLogger) *MQTTSubscriber {
	if opts.ClientID == "" {
		opts.ClientID = "freshmon"
	}
	// Suffix so several instances can share a broker.
	opts.ClientID = opts.ClientID + "-" + uuid.New().String()[:8]
	if opts.KeepAlive == 0 {
		opts.KeepAlive = 30
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MQTTSubscriber{
		opts:       opts,
		proc:       proc,
		log:        log.WithFields(logrus.Fields{"component": "mqtt", "topic": opts.Topic}),
		subscribed: make(chan struct{}),
	}
}

// Subscribed is closed after the first successful subscription.
func (s *MQTTSubscriber) Subscribed() <-chan struct{} {
	return s.subscribed
}

// Run connects and consumes until ctx is cancelled, reconnecting after
// connection loss.
func (s *MQTTSubscriber) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.log.WithError(err).Warnf("connection lost, retrying in %s", s.opts.RetryDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.opts.RetryDelay):
		}
	}
}

func (s *MQTTSubscriber) session(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", brokerAddress(s.opts.Broker))
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.opts.Broker, err)
	}

	lost := make(chan error, 1)
	notifyLost := func(err error) {
		select {
		case lost <- err:
		default:
		}
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: s.opts.ClientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				s.handle(ctx, pr.Packet.Payload)
				return true, nil
			},
		},
		OnClientError: notifyLost,
		OnServerDisconnect: func(d *paho.Disconnect) {
			notifyLost(fmt.Errorf("server disconnected, reason %d", d.ReasonCode))
		},
	})

	connect := &paho.Connect{
		ClientID:   s.opts.ClientID,
		KeepAlive:  s.opts.KeepAlive,
		CleanStart: true,
	}
	if s.opts.Username != "" {
		connect.Username = s.opts.Username
		connect.UsernameFlag = true
	}
	if s.opts.Password != "" {
		connect.Password = []byte(s.opts.Password)
		connect.PasswordFlag = true
	}

	if _, err := client.Connect(ctx, connect); err != nil {
		conn.Close()
		return fmt.Errorf("connect: %w", err)
	}

	if _, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: s.opts.Topic, QoS: s.opts.QoS}},
	}); err != nil {
		client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.WithField("broker", s.opts.Broker).Info("subscribed")
	s.subscribedOnce.Do(func() { close(s.subscribed) })

	select {
	case <-ctx.Done():
		client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return nil
	case err := <-lost:
		conn.Close()
		return err
	}
}

// handle decodes and evaluates one message. Bad messages are dropped.
func (s *MQTTSubscriber) handle(ctx context.Context, payload []byte) {
	reading, err := Decode(payload)
	if err != nil {
		s.log.WithError(err).Warn("dropping undecodable payload")
		return
	}
	if _, err := s.proc.Process(ctx, reading); err != nil {
		if errors.Is(err, evaluator.ErrMissingChannel) {
			s.log.WithError(err).Warn("dropping incomplete reading")
			return
		}
		s.log.WithError(err).Error("failed to process reading")
	}
}

func brokerAddress(broker string) string {
	for _, prefix := range []string{"tcp://", "mqtt://"} {
		broker = strings.TrimPrefix(broker, prefix)
	}
	return broker
}
