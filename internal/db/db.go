package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) AutoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id VARCHAR(64) PRIMARY KEY,
            username VARCHAR(50) NOT NULL,
            status VARCHAR(16) NOT NULL DEFAULT 'offline',
            last_seen TIMESTAMPTZ,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            room_id VARCHAR(64),
            sender_id VARCHAR(64) NOT NULL,
            sender_name VARCHAR(50) NOT NULL DEFAULT '',
            receiver_id VARCHAR(64),
            content TEXT NOT NULL,
            message_type VARCHAR(16) NOT NULL DEFAULT 'text',
            read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE INDEX IF NOT EXISTS idx_messages_room ON messages (room_id, created_at DESC)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_private ON messages (sender_id, receiver_id, created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS private_chats (
            id BIGSERIAL PRIMARY KEY,
            user_a VARCHAR(64) NOT NULL,
            user_b VARCHAR(64) NOT NULL,
            last_message_id BIGINT REFERENCES messages(id) ON DELETE SET NULL,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (user_a, user_b)
        )`,

		`CREATE TABLE IF NOT EXISTS room_members (
            room_id VARCHAR(64) NOT NULL,
            user_id VARCHAR(64) NOT NULL,
            last_seen_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (room_id, user_id)
        )`,
	}

	for _, query := range queries {
		if _, err := d.Conn.Exec(query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
