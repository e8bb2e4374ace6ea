package notify

import (
	"crypto/tls"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofrs/uuid"

	"github.com/MrLituation/BlockBox/internal/pkg/config"
)

// MQTTNotifier publishes buyer/seller messages to per-role topics on the
// locker's broker; the messaging bridge on the other side fans them out to
// the actual chat channel.
type MQTTNotifier struct {
	client mqtt.Client
}

func NewMQTTNotifier(addr string, insecureSkipVerify bool, connectHandler func(client mqtt.Client), connectionLostHandler func(client mqtt.Client, err error)) MQTTNotifier {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(addr)
	opts.CleanSession = false
	u, _ := uuid.NewV4()
	opts.SetClientID(u.String())
	opts.TLSConfig = &tls.Config{
		InsecureSkipVerify: insecureSkipVerify,
	}
	opts.OnConnect = connectHandler
	opts.OnConnectionLost = connectionLostHandler
	opts.AutoReconnect = true
	client := mqtt.NewClient(opts)

	return MQTTNotifier{
		client,
	}
}

func (n MQTTNotifier) Connect() error {
	if token := n.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (n MQTTNotifier) Cleanup() {
	n.client.Disconnect(250)
}

func (n MQTTNotifier) Send(role Role, message string) error {
	topic, err := topicForRole(role)
	if err != nil {
		return err
	}
	token := n.client.Publish(topic, 1, false, message)
	token.Wait()
	return token.Error()
}

func topicForRole(role Role) (string, error) {
	switch role {
	case RoleBuyer:
		return config.BuyerNotifyTopic, nil
	case RoleSeller:
		return config.SellerNotifyTopic, nil
	}
	return "", fmt.Errorf("unknown notification role: %s", role)
}
