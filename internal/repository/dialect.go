package repository

import (
	sq "github.com/Masterminds/squirrel"
)

// dialect captures what differs between the relational backends.
// DDL templates receive the table name as %[1]s.
type dialect struct {
	name          string
	driver        string
	placeholder   sq.PlaceholderFormat
	schema        []string
	insertOptions []string
	insertSuffix  string
	returning     bool
}

var postgresDialect = dialect{
	name:        "postgres",
	driver:      "pgx",
	placeholder: sq.Dollar,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS %[1]s (
			id BIGSERIAL PRIMARY KEY,
			logged_at TIMESTAMPTZ NOT NULL,
			request_id VARCHAR(64) NOT NULL,
			method VARCHAR(16) NOT NULL,
			path VARCHAR(2048) NOT NULL,
			query_string TEXT NOT NULL,
			request_headers TEXT NOT NULL,
			request_body TEXT NOT NULL,
			status_code INTEGER NULL,
			response_body TEXT NOT NULL,
			duration BIGINT NULL,
			level VARCHAR(20) NOT NULL,
			logger VARCHAR(255) NOT NULL,
			client_ip_address VARCHAR(64) NOT NULL,
			user_agent VARCHAR(500) NOT NULL,
			user_id VARCHAR(100) NULL,
			exception TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ix_%[1]s_logged_at ON %[1]s (logged_at DESC)`,
		`CREATE INDEX IF NOT EXISTS ix_%[1]s_status_code ON %[1]s (status_code)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_%[1]s_request_id ON %[1]s (request_id)`,
	},
	insertSuffix: "ON CONFLICT (request_id) DO NOTHING",
	returning:    true,
}

var sqliteDialect = dialect{
	name:        "sqlite",
	driver:      "sqlite",
	placeholder: sq.Question,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS %[1]s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			logged_at DATETIME NOT NULL,
			request_id TEXT NOT NULL,
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			query_string TEXT NOT NULL,
			request_headers TEXT NOT NULL,
			request_body TEXT NOT NULL,
			status_code INTEGER NULL,
			response_body TEXT NOT NULL,
			duration INTEGER NULL,
			level TEXT NOT NULL,
			logger TEXT NOT NULL,
			client_ip_address TEXT NOT NULL,
			user_agent TEXT NOT NULL,
			user_id TEXT NULL,
			exception TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ix_%[1]s_logged_at ON %[1]s (logged_at DESC)`,
		`CREATE INDEX IF NOT EXISTS ix_%[1]s_status_code ON %[1]s (status_code)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_%[1]s_request_id ON %[1]s (request_id)`,
	},
	insertSuffix: "ON CONFLICT (request_id) DO NOTHING",
	returning:    true,
}

// MySQL has no CREATE INDEX IF NOT EXISTS, so indexes live in the table DDL.
var mysqlDialect = dialect{
	name:        "mysql",
	driver:      "mysql",
	placeholder: sq.Question,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS %[1]s (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			logged_at DATETIME(3) NOT NULL,
			request_id VARCHAR(64) NOT NULL,
			method VARCHAR(16) NOT NULL,
			path VARCHAR(2048) NOT NULL,
			query_string TEXT NOT NULL,
			request_headers MEDIUMTEXT NOT NULL,
			request_body MEDIUMTEXT NOT NULL,
			status_code INT NULL,
			response_body MEDIUMTEXT NOT NULL,
			duration BIGINT NULL,
			level VARCHAR(20) NOT NULL,
			logger VARCHAR(255) NOT NULL,
			client_ip_address VARCHAR(64) NOT NULL,
			user_agent VARCHAR(500) NOT NULL,
			user_id VARCHAR(100) NULL,
			exception TEXT NOT NULL,
			INDEX ix_%[1]s_logged_at (logged_at DESC),
			INDEX ix_%[1]s_status_code (status_code),
			UNIQUE INDEX ux_%[1]s_request_id (request_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	insertOptions: []string{"IGNORE"},
}
