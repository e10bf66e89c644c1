// Package observer turns sesame core notifications into outside effects:
// MQTT observation topics, InfluxDB points, the event history table, the
// audit trail, Prometheus metrics and the WebSocket stream.
//
// Every type here implements sesame.Observer. Observer methods run on the
// dispatch goroutine, so anything doing I/O hands the work to a background
// worker with a bounded queue; when the queue is full the notification is
// dropped and counted rather than stalling the core.
//
//	pub := observer.NewPublisher(observer.PublisherOptions{Client: mqttClient})
//	hist := observer.NewHistoryRecorder(historyRepo)
//	pub.Start(ctx)
//	hist.Start(ctx)
//	srv, _ := sesame.NewServer(sesame.ServerOptions{
//	    Observer: sesame.Observers{pub, hist, observer.NewMetrics(reg)},
//	    ...
//	})
package observer
