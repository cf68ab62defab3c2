package main

import (
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/mahaj/community-chat/pkg/config"
	"github.com/mahaj/community-chat/pkg/db"
	"github.com/mahaj/community-chat/pkg/events"
	"github.com/mahaj/community-chat/pkg/presence"
	"github.com/mahaj/community-chat/pkg/snowflake"
	"github.com/mahaj/community-chat/pkg/store"
)

// dependencies are the external resources the gateway holds open.
type dependencies struct {
	session   *db.Session
	messages  store.MessageStore
	presence  presence.Tracker
	publisher events.Publisher

	closers []func() error
}

func openDependencies(cfg config.Config, log *slog.Logger) (*dependencies, error) {
	d := &dependencies{presence: presence.Nop{}, publisher: events.Nop{}}

	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.SnowflakeNode, err)
	}

	session, err := db.NewSession(cfg.ScyllaHostList(), cfg.ScyllaKeyspace, log)
	if err != nil {
		return nil, err
	}
	d.session = session
	d.closers = append(d.closers, func() error { session.Close(); return nil })

	switch cfg.StoreDriver {
	case config.DriverBadger:
		bdb, err := badger.Open(badger.DefaultOptions(cfg.BadgerPath).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("open badger at %s: %w", cfg.BadgerPath, err), d.Close())
		}
		d.closers = append(d.closers, bdb.Close)
		d.messages = store.NewBadgerStore(bdb, node, log)
	default:
		d.messages = store.NewScyllaStore(session, node, log)
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		d.closers = append(d.closers, rdb.Close)
		d.presence = presence.NewRedisTracker(rdb)
	} else {
		log.Warn("REDIS_ADDR is empty, presence is disabled")
	}

	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		publisher := events.NewKafkaPublisher(brokers, cfg.KafkaTopic)
		d.closers = append(d.closers, publisher.Close)
		d.publisher = publisher
	} else {
		log.Warn("KAFKA_BROKERS is empty, message events are not published")
	}
	return d, nil
}

// Close releases resources in reverse opening order.
func (d *dependencies) Close() error {
	var err error
	for i := len(d.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, d.closers[i]())
	}
	d.closers = nil
	return err
}
