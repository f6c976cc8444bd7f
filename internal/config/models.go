package config

// MailboxConfig represents the configuration for the inbound mailbox
type MailboxConfig struct {
	Type     string
	Address  string
	Username string
	Password string
	Folder   string
}

// SMTPConfig represents the configuration for outbound mail
type SMTPConfig struct {
	Address  string
	Username string
	Password string
	From     string
}

// StoreConfig represents the configuration for the primary store
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
}

// LedgerConfig represents the configuration for the processing ledger
type LedgerConfig struct {
	Type          string
	Capacity      int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// GetMailbox returns the mailbox configuration
func (c *Config) GetMailbox() MailboxConfig {
	return MailboxConfig{
		Type:     c.GetString("mailbox.type"),
		Address:  c.GetString("mailbox.address"),
		Username: c.GetString("mailbox.username"),
		Password: c.GetString("mailbox.password"),
		Folder:   c.GetString("mailbox.folder"),
	}
}

// GetSMTP returns the outbound mail configuration
func (c *Config) GetSMTP() SMTPConfig {
	from := c.GetString("forward.from_address")
	if from == "" {
		from = c.GetString("smtp.username")
	}
	return SMTPConfig{
		Address:  c.GetString("smtp.address"),
		Username: c.GetString("smtp.username"),
		Password: c.GetString("smtp.password"),
		From:     from,
	}
}

// GetStore returns the primary store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}

// GetLedger returns the ledger configuration
func (c *Config) GetLedger() LedgerConfig {
	return LedgerConfig{
		Type:          c.GetString("ledger.type"),
		Capacity:      c.GetInt("ledger.capacity"),
		RedisAddr:     c.GetString("ledger.redis_addr"),
		RedisPassword: c.GetString("ledger.redis_password"),
		RedisDB:       c.GetInt("ledger.redis_db"),
	}
}
