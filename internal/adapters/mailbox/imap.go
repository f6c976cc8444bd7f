// Package mailbox provides the inbound mail adapters.
package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/core"
	"github.com/sentinelshare/sentinel/internal/textutil"
)

// maxBodySize caps stored body text; classification only needs the head of
// the message.
const maxBodySize = 64 * 1024

// IMAPSource polls an IMAP folder over TLS. Each fetch opens a fresh
// connection; at typical poll intervals a persistent session buys nothing and
// reconnect handling costs plenty.
type IMAPSource struct {
	address  string
	username string
	password string
	folder   string
	logger   *zap.Logger
}

// NewIMAPSource creates an IMAP mailbox source.
func NewIMAPSource(address, username, password, folder string, logger *zap.Logger) *IMAPSource {
	if folder == "" {
		folder = "INBOX"
	}
	return &IMAPSource{
		address:  address,
		username: username,
		password: password,
		folder:   folder,
		logger:   logger,
	}
}

// FetchNewMessages returns every message received since the given instant.
// IMAP SINCE has day granularity; the ledger absorbs the overlap.
func (s *IMAPSource) FetchNewMessages(ctx context.Context, since time.Time) ([]*core.Message, error) {
	client, err := imapclient.DialTLS(s.address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer client.Close()

	if err := client.Login(s.username, s.password).Wait(); err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	defer client.Logout()

	if _, err := client.Select(s.folder, nil).Wait(); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", s.folder, err)
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{Since: since}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to search mailbox: %w", err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	fetchOptions := &imap.FetchOptions{
		UID:          true,
		Envelope:     true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{{}},
	}
	fetched, err := client.Fetch(imap.UIDSetNum(uids...), fetchOptions).Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	var out []*core.Message
	for _, buf := range fetched {
		msg, err := s.convert(buf)
		if err != nil {
			s.logger.Warn("Skipping unparsable message",
				zap.Uint32("uid", uint32(buf.UID)), zap.Error(err))
			continue
		}
		out = append(out, msg)
	}

	s.logger.Debug("Fetched mailbox window",
		zap.Int("matched", len(uids)), zap.Int("converted", len(out)))
	return out, nil
}

func (s *IMAPSource) convert(buf *imapclient.FetchMessageBuffer) (*core.Message, error) {
	env := buf.Envelope
	if env == nil {
		return nil, fmt.Errorf("message has no envelope")
	}

	id := env.MessageID
	if id == "" {
		// Some senders omit Message-ID; fall back to a stable synthetic key
		// so deduplication still works across fetches.
		id = fmt.Sprintf("synthetic-%s-%d", s.folder, buf.UID)
	}

	receivedAt := buf.InternalDate
	if receivedAt.IsZero() {
		receivedAt = env.Date
	}

	var to []string
	for _, addr := range env.To {
		to = append(to, addr.Addr())
	}

	raw := buf.FindBodySection(&imap.FetchItemBodySection{})
	body, err := extractBody(raw)
	if err != nil {
		return nil, err
	}

	return &core.Message{
		ID:         id,
		From:       formatAddresses(env.From),
		To:         to,
		Subject:    env.Subject,
		Body:       textutil.Normalize(body, maxBodySize),
		ReceivedAt: receivedAt,
		Source:     s.folder,
	}, nil
}

// extractBody walks the MIME tree and prefers plain text, falling back to
// flattened HTML.
func extractBody(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse message: %w", err)
	}

	var plain, html string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read message part: %w", err)
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := header.ContentType()
		if err != nil {
			continue
		}

		content, err := io.ReadAll(part.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read part body: %w", err)
		}

		switch {
		case strings.EqualFold(contentType, "text/plain") && plain == "":
			plain = string(content)
		case strings.EqualFold(contentType, "text/html") && html == "":
			html = string(content)
		}
	}

	if plain != "" {
		return plain, nil
	}
	return textutil.FlattenHTML(html), nil
}

func formatAddresses(addrs []imap.Address) string {
	var parts []string
	for _, addr := range addrs {
		if addr.Name != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", addr.Name, addr.Addr()))
		} else {
			parts = append(parts, addr.Addr())
		}
	}
	return strings.Join(parts, ", ")
}
