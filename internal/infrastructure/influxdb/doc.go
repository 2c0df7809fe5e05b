// Package influxdb writes que-core telemetry to InfluxDB v2.
//
// Every attribute change becomes a que_attribute point tagged with the
// system serial, the top-level group and the full path. Numeric and boolean
// values land in the float field "value", text in "text". Each completed
// refresh writes a que_refresh point with the populate statistics.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	p.AddListener(client)
//
// Writes are non-blocking and batched (batch_size, flush_interval).
// Asynchronous write failures reach the SetOnError callback.
package influxdb
