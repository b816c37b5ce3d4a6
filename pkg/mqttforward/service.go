// Package mqttforward republishes readings to an MQTT broker, one topic per node.
package mqttforward

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/NotCoffee418/cold_chain_telemetry/pkg/acquisition"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/types"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const DefaultTopicPrefix = "cold_chain/telemetry"

type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

type Forwarder struct {
	client mqtt.Client
	config Config
}

func NewForwarder(config Config) (*Forwarder, error) {
	if config.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address cannot be empty")
	}
	if config.TopicPrefix == "" {
		config.TopicPrefix = DefaultTopicPrefix
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)

	if config.ClientID == "" {
		config.ClientID = fmt.Sprintf("cold-chain-telemetry-%d", time.Now().Unix())
	}
	opts.SetClientID(config.ClientID)

	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		log.Println("Trying to reconnect to MQTT broker...")
	})

	return &Forwarder{
		client: mqtt.NewClient(opts),
		config: config,
	}, nil
}

func (f *Forwarder) Connect() error {
	token := f.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("connection to MQTT broker timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	log.Printf("Connected to MQTT broker %s", f.config.Broker)
	return nil
}

// Subscriber forwards worker readings without blocking the worker loop.
func (f *Forwarder) Subscriber() acquisition.Subscriber {
	return acquisition.Subscriber{OnData: f.Publish}
}

func (f *Forwarder) Publish(reading types.Reading) {
	payload := reading.ToJsonBytes()
	if payload == nil {
		return
	}

	topic := Topic(f.config.TopicPrefix, reading.NodeID)
	token := f.client.Publish(topic, 0, false, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			log.Printf("Failed to publish reading to %s: %v", topic, err)
		}
	}()
}

func (f *Forwarder) Disconnect() {
	f.client.Disconnect(250)
	log.Println("Disconnected from MQTT broker")
}

// Topic returns "<prefix>/<node id>"; readings without a node id go to "<prefix>/unknown".
func Topic(prefix string, nodeID int) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if !(types.Reading{NodeID: nodeID}).HasNodeID() {
		return prefix + "/unknown"
	}
	return fmt.Sprintf("%s/%d", prefix, nodeID)
}
