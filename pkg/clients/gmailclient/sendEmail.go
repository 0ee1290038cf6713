package gmailclient

import (
	"encoding/base64"
	"fmt"
	"time"

	"google.golang.org/api/gmail/v1"
)

// sendInterval spaces outgoing messages to stay within the Gmail API
// per-user send quota.
const sendInterval = 3 * time.Second

// SendEmail sends one notification email, blocking until the rate limit
// allows it.
func (c *Client) SendEmail(to, subject, body string) error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	if !c.lastSendTime.IsZero() {
		if wait := sendInterval - time.Since(c.lastSendTime); wait > 0 {
			time.Sleep(wait)
		}
	}

	raw := fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s", to, subject, body)
	message := &gmail.Message{Raw: base64.URLEncoding.EncodeToString([]byte(raw))}
	if _, err := c.service.Users.Messages.Send(c.userID, message).Do(); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	c.lastSendTime = time.Now()
	return nil
}
