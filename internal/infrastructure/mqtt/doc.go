// Package mqtt connects que-core to an MQTT broker.
//
// The Client wraps paho.mqtt.golang with auto-reconnect, subscription
// restore and a retained status topic backed by a last will. The Bridge
// mirrors every attribute change to a retained state topic and accepts
// command requests:
//
//	que/state/ABC123/RemoteZoneInfo.[0].LiveTemp_oC   {"value":21.5,"kind":"float",...}
//	que/command/ABC123                                 {"command":"power","value":true}
//	que/command/ABC123                                 {"path":"UserAirconSettings.Mode","value":"COOL"}
//	que/ack/ABC123                                     {"status":"sent","command_id":"...","key":"..."}
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	bridge := mqtt.NewBridge(client, logger)
//	p.AddListener(bridge)
//	err = bridge.ServeCommands(ctx, p)
//
// Use TLS (broker.tls) for any broker that is not on localhost.
package mqtt
