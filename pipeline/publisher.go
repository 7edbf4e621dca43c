package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const mqttPublishTimeout = 2 * time.Second

// Publisher announces completed classification runs on an MQTT topic so
// dashboards can refresh without polling. A nil client disables publishing.
type Publisher struct {
	client mqtt.Client
	topic  string
	qos    byte
	retain bool
	log    *zap.Logger
}

// NewPublisher creates a result publisher for the given topic.
func NewPublisher(client mqtt.Client, topic string, log *zap.Logger) *Publisher {
	if topic == "" {
		topic = "geodataviz/results"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		client: client,
		topic:  topic,
		qos:    0,
		retain: true,
		log:    log,
	}
}

// resultAnnouncement is the wire shape of a published run summary.
type resultAnnouncement struct {
	Dominant      string     `json:"dominant"`
	DominantLabel string     `json:"dominant_label"`
	FeatureCount  int        `json:"feature_count"`
	Place         *PlaceInfo `json:"place,omitempty"`
	Timestamp     int64      `json:"timestamp"`
}

// PublishResult publishes a summary of the run. With no client configured it
// is a no-op.
func (p *Publisher) PublishResult(res *Result) error {
	if p.client == nil {
		return nil
	}
	if !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(resultAnnouncement{
		Dominant:      string(res.Dominant),
		DominantLabel: res.Dominant.Label(),
		FeatureCount:  len(res.Features),
		Place:         res.Place,
		Timestamp:     time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshaling result announcement: %w", err)
	}

	token := p.client.Publish(p.topic, p.qos, p.retain, payload)
	if token.WaitTimeout(mqttPublishTimeout) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", p.topic, token.Error())
	}

	p.log.Debug("published result", zap.String("topic", p.topic), zap.String("dominant", string(res.Dominant)))
	return nil
}

// ConnectMQTT connects to the broker with sane timeouts. An empty broker URL
// disables MQTT and returns a nil client.
func ConnectMQTT(broker, clientID, username, password string) (mqtt.Client, error) {
	if broker == "" {
		return nil, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(1 * time.Minute)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("connecting to MQTT broker %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", broker, err)
	}
	return client, nil
}
