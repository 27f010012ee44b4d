// Package notify pushes feed-version changes to playout clients over MQTT
// so they can re-fetch instead of polling.
package notify

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const feedVersionTopic = "airsync/feed/version"

var connectHandler mqtt.OnConnectHandler = func(client mqtt.Client) {
	log.Info().Msg("connected to MQTT broker")
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	log.Warn().Err(err).Msg("MQTT connection lost")
}

// Publisher announces feed transitions. A nil Publisher is a no-op, so MQTT
// stays optional in deployments without a broker.
type Publisher struct {
	client mqtt.Client
}

func NewPublisher(brokerURL, clientID string) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.OnConnect = connectHandler
	opts.OnConnectionLost = connectLostHandler

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &Publisher{client: client}, nil
}

type feedVersionMessage struct {
	Version int64  `json:"schedule_version"`
	Status  string `json:"status"`
}

// PublishFeedVersion fires a retained message with the latest feed version;
// late-joining clients get the current value immediately.
func (p *Publisher) PublishFeedVersion(version int64, status string) {
	if p == nil || p.client == nil {
		return
	}
	payload, _ := json.Marshal(feedVersionMessage{Version: version, Status: status})
	token := p.client.Publish(feedVersionTopic, 1, true, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Msg("publishing feed version failed")
		}
	}()
}
