package db

import (
	"fmt"
	"log/slog"
)

var tables = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		community text,
		id bigint,
		user_id text,
		author_name text,
		content text,
		sent_at timestamp,
		PRIMARY KEY (community, id)
	) WITH CLUSTERING ORDER BY (id ASC)`,
	`CREATE TABLE IF NOT EXISTS users (
		id text PRIMARY KEY,
		name text,
		email text,
		password_hash text,
		created_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS users_by_email (
		email text PRIMARY KEY,
		id text
	)`,
	`CREATE TABLE IF NOT EXISTS user_following (
		user_id text,
		target_id text,
		PRIMARY KEY (user_id, target_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_followers (
		user_id text,
		follower_id text,
		PRIMARY KEY (user_id, follower_id)
	)`,
	`CREATE TABLE IF NOT EXISTS community_activity (
		community text PRIMARY KEY,
		last_message_at timestamp,
		last_author text
	)`,
	`CREATE TABLE IF NOT EXISTS community_counters (
		community text PRIMARY KEY,
		message_count counter
	)`,
}

// Migrate creates the keyspace through the system keyspace and then every table.
func Migrate(hosts []string, keyspace string, log *slog.Logger) error {
	sysSession, err := NewSession(hosts, "system", log)
	if err != nil {
		return err
	}
	err = sysSession.Query(fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`,
		keyspace,
	)).Exec()
	sysSession.Close()
	if err != nil {
		return fmt.Errorf("create keyspace: %w", err)
	}

	session, err := NewSession(hosts, keyspace, log)
	if err != nil {
		return err
	}
	defer session.Close()

	for _, stmt := range tables {
		if err := session.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	log.Info("Schema is up to date", "keyspace", keyspace, "tables", len(tables))
	return nil
}
