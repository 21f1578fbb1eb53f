package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/viper"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// GetConfig returns database configuration with defaults
func GetConfig() *DBConfig {
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.name", "cityline_bank")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", time.Minute*5)

	return &DBConfig{
		Host:            viper.GetString("database.host"),
		Port:            viper.GetString("database.port"),
		User:            viper.GetString("database.user"),
		Password:        viper.GetString("database.password"),
		Name:            viper.GetString("database.name"),
		SSLMode:         viper.GetString("database.ssl_mode"),
		MaxOpenConns:    viper.GetInt("database.max_open_conns"),
		MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
	}
}

// InitDB opens the database connection and configures the pool.
func InitDB() (*sql.DB, error) {
	config := GetConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Name, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	log.Println("Database connection established")
	return db, nil
}

// InitDatabase initializes database with error handling
func InitDatabase() *sql.DB {
	db, err := InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	return db
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		account_no VARCHAR(64) NOT NULL UNIQUE,
		role VARCHAR(16) NOT NULL DEFAULT 'customer' CHECK (role IN ('admin', 'customer')),
		name VARCHAR(80) NOT NULL,
		email VARCHAR(255),
		pin_hash VARCHAR(255) NOT NULL,
		balance BIGINT NOT NULL DEFAULT 0,
		is_frozen BOOLEAN NOT NULL DEFAULT FALSE,
		version INT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE SEQUENCE IF NOT EXISTS account_no_seq START WITH 1000003`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		txn_key VARCHAR(64) NOT NULL UNIQUE,
		type VARCHAR(32) NOT NULL CHECK (type IN (
			'DEPOSIT', 'WITHDRAW', 'TRANSFER', 'ACCOUNT_CREATE',
			'ADMIN_ADJUST', 'ACCOUNT_FREEZE', 'ACCOUNT_UNFREEZE', 'EMAIL_UPDATE')),
		status VARCHAR(32) NOT NULL DEFAULT 'COMPLETED' CHECK (status IN (
			'PENDING_APPROVAL', 'COMPLETED', 'REJECTED', 'FAILED')),
		actor_account_no VARCHAR(64) NOT NULL,
		from_account_no VARCHAR(64) NOT NULL,
		to_account_no VARCHAR(64) NOT NULL,
		amount BIGINT NOT NULL DEFAULT 0 CHECK (amount >= 0),
		memo VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions (status)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS transaction_entries (
		id BIGSERIAL PRIMARY KEY,
		txn_key VARCHAR(64) NOT NULL REFERENCES transactions (txn_key) ON DELETE CASCADE,
		account_no VARCHAR(64) NOT NULL,
		entry_type VARCHAR(8) NOT NULL CHECK (entry_type IN ('DEBIT', 'CREDIT')),
		amount BIGINT NOT NULL CHECK (amount > 0),
		counterparty_account_no VARCHAR(64),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_account ON transaction_entries (account_no, created_at)`,
	`CREATE TABLE IF NOT EXISTS transaction_reviews (
		id BIGSERIAL PRIMARY KEY,
		txn_key VARCHAR(64) NOT NULL REFERENCES transactions (txn_key) ON DELETE CASCADE,
		reviewer_account_no VARCHAR(64),
		decision VARCHAR(16) NOT NULL CHECK (decision IN ('APPROVED', 'REJECTED')),
		reason VARCHAR(255),
		decided_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the schema if it does not exist yet.
func Migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
