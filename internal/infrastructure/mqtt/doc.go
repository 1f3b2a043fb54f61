// Package mqtt connects the Limitimer bridge to an MQTT broker.
//
// Each timer is presented on the broker so show-control systems and
// dashboards can follow it and trigger front-panel actions without speaking
// the device's serial protocol:
//
//	Limitimer ↔ bridge ↔ broker ↔ show control / dashboards
//
// Paho handles reconnection. On every reconnect the client replays its
// subscriptions and republishes the bridge's online status; the broker's
// will marks the bridge offline if the process dies. Topic naming lives in
// Topics.
//
// Credentials come from config.Secret and are never logged. Enable TLS
// when the broker is not local.
//
// Usage:
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        key, action, _ := topics.ParseCommand(topic)
//	        return handle(key, action, payload)
//	    })
package mqtt
