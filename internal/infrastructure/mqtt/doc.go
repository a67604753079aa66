// Package mqtt publishes archive events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing archive events as JSON on <prefix>/archive/<op>
//   - Topic subscriptions, so operators can follow a running archive job
//   - Last Will and Testament (LWT) on <prefix>/system/status
//
// # Security Considerations
//
//   - TLS should be enabled for brokers outside the host (cfg.Broker.TLS=true)
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	mgr := archive.NewManager(backend, archive.WithObserver(mqtt.NewPublisher(client)))
//
//	// Follow events from another process
//	err = client.Subscribe(client.Topics().AllArchiveEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        ev, err := mqtt.DecodeEventMessage(payload)
//	        if err != nil {
//	            return err
//	        }
//	        fmt.Println(ev.Op, ev.Path, ev.Success)
//	        return nil
//	    })
package mqtt
