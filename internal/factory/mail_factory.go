package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/adapters/mailbox"
	"github.com/sentinelshare/sentinel/internal/adapters/mailer"
	"github.com/sentinelshare/sentinel/internal/config"
	"github.com/sentinelshare/sentinel/internal/core"
)

// MailFactory creates the mailbox source and outbound mailer based on
// configuration
type MailFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewMailFactory creates a new mail factory
func NewMailFactory(cfg *config.Config, logger *zap.Logger) *MailFactory {
	return &MailFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateMailboxSource creates the inbound mailbox source
func (f *MailFactory) CreateMailboxSource() (core.MailboxSource, error) {
	mailboxCfg := f.cfg.GetMailbox()

	switch mailboxCfg.Type {
	case "imap":
		return mailbox.NewIMAPSource(
			mailboxCfg.Address,
			mailboxCfg.Username,
			mailboxCfg.Password,
			mailboxCfg.Folder,
			f.logger,
		), nil
	default:
		return nil, fmt.Errorf("unsupported mailbox type: %s", mailboxCfg.Type)
	}
}

// CreateMailSender creates the outbound mailer
func (f *MailFactory) CreateMailSender() (core.MailSender, error) {
	smtpCfg := f.cfg.GetSMTP()
	if smtpCfg.From == "" {
		return nil, fmt.Errorf("forward.from_address or smtp.username must be set")
	}

	return mailer.NewSMTPMailer(
		smtpCfg.Address,
		smtpCfg.Username,
		smtpCfg.Password,
		smtpCfg.From,
		f.logger,
	), nil
}
