package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/tiiuae/missionrunner/internal/types"
)

// Client is the publishing half of mqtt.Client.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

var topics = map[string]string{
	types.MissionProgress: "events/telemetry",
	types.MissionStatus:   "events/mission-status",
}

type publisher struct {
	client   Client
	deviceID string
	inbox    chan types.Message
	timeout  time.Duration
}

// New returns a bus handler publishing this device's mission messages to
// /devices/<device>/events/...
func New(client Client, deviceID string) types.MessageHandler {
	return &publisher{client, deviceID, make(chan types.Message, 50), 5 * time.Second}
}

func (p *publisher) Receive(message types.Message) {
	if message.From != p.deviceID {
		return
	}
	if _, ok := topics[message.MessageType]; !ok {
		return
	}
	select {
	case p.inbox <- message:
	default:
		log.Warnf("MQTT: inbox full, dropping %s", message.MessageType)
	}
}

func (p *publisher) Run(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
	wg.Add(1)
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Println("MQTT publisher shutting down")
			return
		case msg := <-p.inbox:
			p.publish(msg)
		}
	}
}

func (p *publisher) publish(msg types.Message) {
	b, err := msg.ToJSON()
	if err != nil {
		log.Errorf("MQTT: could not marshal %s: %v", msg.MessageType, err)
		return
	}
	topic := fmt.Sprintf("/devices/%s/%s", p.deviceID, topics[msg.MessageType])
	tok := p.client.Publish(topic, QoS, Retain, string(b))
	if tok.WaitTimeout(p.timeout) && tok.Error() != nil {
		log.Errorf("MQTT: publish to %s failed: %v", topic, tok.Error())
	}
}
