// Package influxdb writes sesame telemetry to InfluxDB v2.
//
// It wraps influxdb-client-go's non-blocking write API and builds the
// points the server records:
//
//	sesame_trigger  tags: trigger, event        fields: history_tag, history_tag_type, connected, disconnect_reason
//	sesame_lock     tags: lock, kind            fields: locked, state
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePoint(influxdb.LockPoint(lock, time.Now()))
//
// Writes are batched per the batch_size and flush_interval settings. Batch
// failures are reported through SetOnError; connection errors are returned
// directly.
package influxdb
