// Package kafkasink implements a streaming exactly-once sink core for a
// continuously-updating materialized view: it consumes a timestamped,
// differentially-updated relation and emits its changes to a
// transactional, idempotent, topic-partitioned broker.
//
// The pieces compose bottom-up:
//
//	codec := encode.NewJSONEncoder()
//	stage := encode.NewStage(codec, encode.AsOf{Frontier: 0, Strict: false}, nil, cfg.Fuel)
//
//	var sink *sinkcore.Sink
//	producer, err := kafkatxn.NewKgoProducer(kafkatxn.ProducerConfig{
//		Addrs:       cfg.Addrs,
//		Topic:       cfg.Topic,
//		TopicPrefix: cfg.TopicPrefix,
//		ExactlyOnce: cfg.ExactlyOnce,
//	}, func() { sink.Shutdown().Set() })
//
//	sink = sinkcore.New(sinkcore.Config{
//		SinkID:         sinkID,
//		Topic:          cfg.Topic,
//		TopicPrefix:    cfg.TopicPrefix,
//		ExactlyOnce:    cfg.ExactlyOnce,
//		IsActiveWriter: operator.ActiveWriter(sinkID, workerIdx, workerCount),
//		Producer:       producer,
//		ControlCodec:   codec,
//		Metrics:        metricsBase.For(cfg.Topic, sinkID, workerID),
//	})
//
//	driver := operator.NewDriver(sinkID, sink, inputSource, durabilitySources, publisher)
//	err = driver.Run(ctx)
//
// Package boundaries mirror the component table: pkg/encode gates and
// encodes rows (component A), pkg/kafkatxn wraps the broker client
// (component B), pkg/retry classifies errors and drives backoff
// (component C), pkg/sinkcore holds the pending/ready state machine
// (component D), and pkg/operator drives it (component E).
package kafkasink
