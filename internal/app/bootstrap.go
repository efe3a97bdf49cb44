package app

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"

	"redraft/internal/config"
)

type Dependencies struct {
	DB          *sql.DB
	NSQProducer *nsq.Producer
}

func Bootstrap(cfg *config.Config) (*Dependencies, error) {
	// Database
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	// Retry loop
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Migrations
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("migration up error: %w", err)
	}

	// NSQ Producer
	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}

	createTopics(nsqdHTTPAddr(cfg.NSQDHost))

	return &Dependencies{
		DB:          db,
		NSQProducer: producer,
	}, nil
}

// nsqdHTTPAddr derives the nsqd HTTP endpoint from the TCP address; the HTTP
// API conventionally sits one port above TCP (4150 -> 4151).
func nsqdHTTPAddr(tcpAddr string) string {
	host, _, err := net.SplitHostPort(tcpAddr)
	if err != nil || host == "" {
		host = "nsqd"
	}
	return net.JoinHostPort(host, "4151")
}

// createTopics pre-creates topics on nsqd. NSQ creates them lazily on first
// publish, but consumers querying lookupd 404 until then.
func createTopics(nsqdHTTP string) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil)
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicTransformTask)
		create(config.TopicTransformResult)
	}()
}

// StartConsumers connects the task and result consumers to lookupd. Returned
// consumers should be stopped on shutdown.
func StartConsumers(cfg *config.Config, a *App) ([]*nsq.Consumer, error) {
	var consumers []*nsq.Consumer

	taskConsumer, err := nsq.NewConsumer(config.TopicTransformTask, "transformer", nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("task consumer error: %w", err)
	}
	taskConsumer.AddHandler(nsq.HandlerFunc(a.TaskConsumer.HandleMessage))
	if err := taskConsumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		return nil, fmt.Errorf("task consumer lookupd error: %w", err)
	}
	consumers = append(consumers, taskConsumer)

	resultConsumer, err := nsq.NewConsumer(config.TopicTransformResult, "notifier", nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("result consumer error: %w", err)
	}
	resultConsumer.AddHandler(nsq.HandlerFunc(a.ResultConsumer.HandleMessage))
	if err := resultConsumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		return nil, fmt.Errorf("result consumer lookupd error: %w", err)
	}
	consumers = append(consumers, resultConsumer)

	slog.Info("NSQ consumers connected", "lookupd", cfg.NSQLookupd)
	return consumers, nil
}
