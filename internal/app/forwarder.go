package app

import (
	"context"
	"fmt"

	"github.com/nimbus-works/nimbus-event-forwarder/internal/config"
	"github.com/nimbus-works/nimbus-event-forwarder/internal/engine"
	"github.com/nimbus-works/nimbus-event-forwarder/internal/ingest"
	"github.com/nimbus-works/nimbus-event-forwarder/internal/logger"
	"github.com/nimbus-works/nimbus-event-forwarder/pkg/destinations"
)

// Forwarder represents the event forwarder runtime. It wires the destination
// senders and forwarding engine to the ingest hosts and manages their
// lifecycle.
type Forwarder struct {
	cfg    *config.Config
	eng    *engine.Engine
	reg    destinations.Registry
	server *ingest.Server
	nats   *ingest.NATSConsumer
	amqp   *ingest.AMQPConsumer
	kafka  *ingest.KafkaConsumer
	log    logger.Logger
}

// NewForwarder builds a forwarder runtime from config.
func NewForwarder(ctx context.Context, cfg *config.Config, log logger.Logger) (*Forwarder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reg, err := destinations.DefaultRegistry(ctx, destinations.SenderOptions{
		AWS: destinations.AWSOptions{
			Region:    cfg.AWSRegion,
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
		},
		GCPCredsFile: cfg.GCPCredsFile,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("build destination senders: %w", err)
	}

	eng, err := engine.NewEngine(cfg, reg, log)
	if err != nil {
		reg.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}

	report := eng.Verification()
	log.InfoObj("destinations loaded", "destinations_meta", map[string]any{
		"source":  report.Source,
		"loaded":  report.TotalLoaded,
		"enabled": len(report.Enabled),
	})

	f := &Forwarder{
		cfg: cfg,
		eng: eng,
		reg: reg,
		log: log,
	}
	f.server = ingest.NewServer(cfg.ListenAddr, eng, log)

	if cfg.NATSURL != "" {
		nc, err := ingest.NewNATSConsumer(cfg.NATSURL, cfg.NATSSubject, eng, log)
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("init nats consumer: %w", err)
		}
		f.nats = nc
	}
	if cfg.AMQPURL != "" {
		f.amqp = ingest.NewAMQPConsumer(cfg.AMQPURL, cfg.AMQPQueue, eng, log)
	}
	if len(cfg.KafkaBrokers) > 0 {
		f.kafka = ingest.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup, eng, log)
	}

	return f, nil
}

// Run starts the ingest hosts and blocks until the context is cancelled,
// then shuts everything down within the configured grace period.
func (f *Forwarder) Run(ctx context.Context) error {
	if f == nil || f.eng == nil {
		return fmt.Errorf("forwarder is not initialized")
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := f.server.Start(); err != nil {
			serverErr <- fmt.Errorf("http server: %w", err)
		}
	}()

	if f.nats != nil {
		if err := f.nats.Start(); err != nil {
			f.shutdown()
			return fmt.Errorf("start nats consumer: %w", err)
		}
	}
	if f.amqp != nil {
		if err := f.amqp.Start(); err != nil {
			f.shutdown()
			return fmt.Errorf("start amqp consumer: %w", err)
		}
	}
	if f.kafka != nil {
		if err := f.kafka.Start(); err != nil {
			f.shutdown()
			return fmt.Errorf("start kafka consumer: %w", err)
		}
	}

	f.log.InfoObj("forwarder running", "forwarder_state", map[string]any{
		"listen_addr":   f.cfg.ListenAddr,
		"reload_policy": f.cfg.ReloadPolicy,
		"nats_enabled":  f.nats != nil,
		"amqp_enabled":  f.amqp != nil,
		"kafka_enabled": f.kafka != nil,
	})

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		f.shutdown()
		return err
	}

	f.log.InfoObj("forwarder stopping", "reason", ctx.Err())
	return f.shutdown()
}

// ReloadDestinations re-reads the destination config and swaps the active
// snapshot. Wired to SIGHUP for the "startup" reload policy; under the
// "always" policy every invocation reloads on its own.
func (f *Forwarder) ReloadDestinations() {
	if f == nil || f.eng == nil {
		return
	}
	if err := f.eng.Reload(); err != nil {
		f.log.ErrorObj("destinations reload failed", "error", err)
		return
	}
	report := f.eng.Verification()
	f.log.InfoObj("destinations reloaded", "destinations_meta", map[string]any{
		"source":  report.Source,
		"loaded":  report.TotalLoaded,
		"enabled": len(report.Enabled),
	})
}

// shutdown stops the ingest hosts and closes the sender registry, logging
// errors and returning the first one encountered.
func (f *Forwarder) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), f.cfg.ShutdownGrace)
	defer cancel()

	var firstErr error
	record := func(stage string, err error) {
		if err == nil {
			return
		}
		f.log.ErrorObj(stage+" shutdown failed", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	record("http server", f.server.Shutdown(shutdownCtx))
	if f.nats != nil {
		record("nats consumer", f.nats.Stop())
	}
	if f.amqp != nil {
		record("amqp consumer", f.amqp.Stop())
	}
	if f.kafka != nil {
		record("kafka consumer", f.kafka.Stop())
	}
	record("sender registry", f.reg.Close())
	return firstErr
}
