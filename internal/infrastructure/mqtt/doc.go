// Package mqtt is the broker session behind the bridge.
//
// Client wraps paho.mqtt.golang and implements bridge.Transport. Every
// call returns as soon as the packet is queued; the broker's answers come
// back later as bridge.Event values through the single handler installed
// with SetEventHandler, together with connect, disconnect and inbound data
// notifications.
//
// # Session
//
//   - The broker URL comes from the settings store (MQTT_URL), for example
//     mqtt://broker.local:1883 or mqtts://broker.example.com.
//   - Clean session: subscriptions are re-issued by the bridge on connect.
//   - Paho reconnects with backoff between reconnect.initial_delay and
//     reconnect.max_delay.
//   - <base>/Availability is "online" (retained) while connected. The broker
//     publishes "offline" as Last Will, and Close publishes it on shutdown.
//
// # Usage
//
//	client, err := mqtt.New(cfg.MQTT, brokerURL, base)
//	if err != nil {
//	    return err
//	}
//	gate := bridge.NewGate(gateCfg, client, mailbox)
//	client.SetEventHandler(gate.HandleEvent)
//	client.Start()
//	defer client.Close()
package mqtt
