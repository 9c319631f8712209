package database

// Bootstrap DDL, applied statement by statement at startup. The CHECK on
// accounts.credits is a backstop; the repositories already refuse to drive a
// balance negative.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
    id CHAR(36) PRIMARY KEY,
    email VARCHAR(255) NOT NULL UNIQUE,
    password_hash VARCHAR(255) NOT NULL,
    credits INT NOT NULL DEFAULT 0,
    daily_ad_count INT NOT NULL DEFAULT 0,
    last_ad_date CHAR(10) NOT NULL DEFAULT '',
    is_unmetered TINYINT(1) NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    CONSTRAINT chk_credits_non_negative CHECK (credits >= 0)
)`,

	`CREATE TABLE IF NOT EXISTS sessions (
    token CHAR(36) PRIMARY KEY,
    account_id CHAR(36) NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    expires_at TIMESTAMP NOT NULL,
    FOREIGN KEY (account_id) REFERENCES accounts(id)
)`,

	`CREATE TABLE IF NOT EXISTS pricing_tiers (
    id VARCHAR(32) PRIMARY KEY,
    name VARCHAR(64) NOT NULL,
    price_krw INT NOT NULL,
    credits INT NOT NULL,
    description VARCHAR(255) NOT NULL DEFAULT '',
    is_free_tier TINYINT(1) NOT NULL DEFAULT 0,
    is_popular TINYINT(1) NOT NULL DEFAULT 0,
    sort_order INT NOT NULL DEFAULT 0
)`,

	`CREATE TABLE IF NOT EXISTS pending_orders (
    order_id VARCHAR(64) PRIMARY KEY,
    account_id CHAR(36) NOT NULL,
    tier_id VARCHAR(32) NOT NULL,
    credits INT NOT NULL,
    amount INT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (account_id) REFERENCES accounts(id)
)`,

	`CREATE TABLE IF NOT EXISTS payments (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    account_id CHAR(36) NOT NULL,
    order_id VARCHAR(64) NOT NULL UNIQUE,
    tier_id VARCHAR(32) NOT NULL DEFAULT '',
    payment_key VARCHAR(200) NOT NULL DEFAULT '',
    amount INT NOT NULL DEFAULT 0,
    credits INT NOT NULL DEFAULT 0,
    status VARCHAR(16) NOT NULL,
    failure_code VARCHAR(64) NOT NULL DEFAULT '',
    failure_message VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (account_id) REFERENCES accounts(id)
)`,

	`CREATE TABLE IF NOT EXISTS generation_logs (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    account_id CHAR(36) NOT NULL,
    prompt TEXT NOT NULL,
    style VARCHAR(32) NOT NULL,
    panel_count INT NOT NULL,
    credits_spent INT NOT NULL,
    failed_panels INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (account_id) REFERENCES accounts(id)
)`,
}
