package store

import (
	"database/sql"
	"errors"
	"fmt"

	"coin-wallet/internal/logging"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	DBDSN string
	DB    *sql.DB
}

func (ms *Database) NewStorage(DBDSN string) error {
	var err error
	ms.DBDSN = DBDSN
	if logging.Logg == nil {
		return fmt.Errorf("logger is not initialized")
	}

	if ms.DB, err = sql.Open("pgx", ms.DBDSN); err != nil {
		logging.Logg.Error("Couldn't connect to the database with an error", "error", err)
		return err
	}

	err = ms.initDBTables()
	if err != nil {
		logging.Logg.Error("Failed to initialize DB", "error", err)
		return err
	}
	logging.Logg.Info("Database connection was created")
	return nil
}

func (ms *Database) initDBTables() error {
	var errs []error
	stmts := []string{
		`create table if not exists users (
			user_id BIGSERIAL PRIMARY KEY,
			login VARCHAR(100) NOT NULL UNIQUE,
			password_hash VARCHAR(60),
			is_admin BOOLEAN NOT NULL DEFAULT FALSE
		);`,

		`create table if not exists coin_user_balances (
			user_id BIGINT PRIMARY KEY REFERENCES users(user_id),
			balance BIGINT NOT NULL DEFAULT 0
		);`,

		`create table if not exists coin_transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			amount BIGINT NOT NULL,
			balance_after BIGINT NOT NULL,
			reason TEXT NOT NULL,
			transaction_type VARCHAR(30) NOT NULL,
			out_trade_no VARCHAR(64),
			created_at TIMESTAMP NOT NULL DEFAULT (now() at time zone 'utc')
		);`,

		`create table if not exists coin_payment_orders (
			order_id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			out_trade_no VARCHAR(64) NOT NULL UNIQUE,
			trade_no VARCHAR(64),
			recharge_package_id BIGINT,
			coin_amount BIGINT NOT NULL,
			original_price DECIMAL(10, 2) NOT NULL,
			actual_price DECIMAL(10, 2) NOT NULL,
			discount_rate INT NOT NULL DEFAULT 100,
			payment_type VARCHAR(30) NOT NULL,
			pay_url TEXT,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL DEFAULT (now() at time zone 'utc'),
			paid_at TIMESTAMP
		);`,

		`create table if not exists coin_discount_groups (
			group_id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE,
			discount_rate INT NOT NULL,
			description TEXT
		);`,

		`create table if not exists coin_discount_group_users (
			id BIGSERIAL PRIMARY KEY,
			discount_group_id BIGINT NOT NULL REFERENCES coin_discount_groups(group_id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			UNIQUE (discount_group_id, user_id)
		);`,

		`create table if not exists coin_recharge_packages (
			package_id BIGSERIAL PRIMARY KEY,
			coin_amount BIGINT NOT NULL,
			price DECIMAL(10, 2) NOT NULL,
			description TEXT,
			display_order INT NOT NULL DEFAULT 0,
			recommended BOOLEAN NOT NULL DEFAULT FALSE,
			active BOOLEAN NOT NULL DEFAULT TRUE
		);`,

		`create table if not exists coin_payment_channels (
			channel_id BIGSERIAL PRIMARY KEY,
			channel_type VARCHAR(30) NOT NULL UNIQUE,
			name VARCHAR(100) NOT NULL,
			icon VARCHAR(50) NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			display_order INT NOT NULL DEFAULT 0
		);`,

		`create table if not exists coin_invoice_requests (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			amount BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			reason TEXT,
			invoice_type VARCHAR(20),
			invoice_title TEXT,
			tax_number TEXT,
			email TEXT,
			invoice_url TEXT,
			admin_note TEXT,
			resubmit_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT (now() at time zone 'utc')
		);`,
	}

	for _, s := range stmts {
		_, err := ms.DB.Exec(s)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
