// Package mqtt provides the MQTT connection shared by the engine link and
// the observation publisher.
//
// It manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS validation and a payload size cap
//   - Subscriptions, restored automatically after a reconnect
//   - Last Will and Testament on the availability topic
//
// # Topics
//
// Observation topics live under a configurable prefix (default
// "graylogic/sesame"); see Topics. The engine link owns its own subtree
// under the engine prefix.
//
//	graylogic/sesame/availability          online/offline (retained, LWT)
//	graylogic/sesame/server/status         registered/failed (retained)
//	graylogic/sesame/trigger/{name}/event  one message per forwarded event
//	graylogic/sesame/trigger/{name}/state  history tag, connection (retained)
//	graylogic/sesame/lock/{id}/state       lock state (retained)
//	graylogic/sesame/lock/{id}/set         lock commands (subscribed)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix)
//	err = client.Subscribe(topics.AllLockSets(), 1, func(topic string, payload []byte) error {
//	    id, _ := topics.LockIDFromSetTopic(topic)
//	    return handle(id, payload)
//	})
package mqtt
