package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MqttProducer subscribes to the coordinator's discovery topic on a
// broker (Mosquitto/EMQX in the original deployment) and parses each
// message's colon-delimited payload into a ServiceInfo. Grounded on
// `discovery/mqtt_producer.rs`'s `AsyncDiscoverClient`/`MqttPayload`,
// translated from `rumqttc` to the closest idiomatic Go MQTT client in
// the example pack's wider ecosystem.
type MqttProducer struct {
	BrokerURL string
	ClientID  string
	Topic     string
}

// payload grammar: "ip:tag:pid:hash:alias[:key=value]*", matching the
// original's MqttPayload::parse.
func parsePayload(raw string) (ServiceInfo, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 5 {
		return ServiceInfo{}, fmt.Errorf("discovery: malformed mqtt payload %q", raw)
	}
	pid, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return ServiceInfo{}, fmt.Errorf("discovery: bad pid in payload %q: %w", raw, err)
	}
	info := ServiceInfo{
		IP:    parts[0],
		Tag:   parts[1],
		PID:   pid,
		Hash:  parts[3],
		Alias: parts[4],
	}
	if len(parts) > 5 {
		info.UserData = make(map[string]string, len(parts)-5)
		for _, kv := range parts[5:] {
			pair := strings.SplitN(kv, "=", 2)
			if len(pair) == 2 {
				info.UserData[pair[0]] = pair[1]
			}
		}
	}
	return info, nil
}

func (p *MqttProducer) Run(ctx context.Context, onDiscover func(ServiceInfo)) error {
	opts := mqtt.NewClientOptions().AddBroker(p.BrokerURL).SetClientID(p.ClientID).SetAutoReconnect(true)

	errCh := make(chan error, 1)
	opts.SetDefaultPublishHandler(func(mqtt.Client, mqtt.Message) {})

	client := mqtt.NewClient(opts)
	if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
		return fmt.Errorf("discovery: mqtt connect: %w", tok.Error())
	}
	defer client.Disconnect(250)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		info, err := parsePayload(string(msg.Payload()))
		if err != nil {
			return
		}
		onDiscover(info)
	}
	if tok := client.Subscribe(p.Topic, 1, handler); tok.Wait() && tok.Error() != nil {
		return fmt.Errorf("discovery: mqtt subscribe %s: %w", p.Topic, tok.Error())
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
