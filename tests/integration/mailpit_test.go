//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MailpitClient talks to the Mailpit REST API to inspect mail the SMTP
// sender delivered during a test.
type MailpitClient struct {
	baseURL string
	client  *http.Client
}

// MailpitAddress is a single address in a Mailpit message envelope.
type MailpitAddress struct {
	Name    string `json:"Name"`
	Address string `json:"Address"`
}

// MailpitMessage is a message summary as returned by the messages listing.
type MailpitMessage struct {
	ID      string           `json:"ID"`
	From    MailpitAddress   `json:"From"`
	To      []MailpitAddress `json:"To"`
	Subject string           `json:"Subject"`
	Snippet string           `json:"Snippet"`
}

// MailpitMessageDetail is the full message including rendered bodies.
type MailpitMessageDetail struct {
	ID      string           `json:"ID"`
	From    MailpitAddress   `json:"From"`
	To      []MailpitAddress `json:"To"`
	Subject string           `json:"Subject"`
	Text    string           `json:"Text"`
	HTML    string           `json:"HTML"`
}

type mailpitListResponse struct {
	Total    int              `json:"total"`
	Messages []MailpitMessage `json:"messages"`
}

func NewMailpitClient(host string, port int) *MailpitClient {
	return &MailpitClient{
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// GetMessages returns all messages currently held by Mailpit.
func (c *MailpitClient) GetMessages() ([]MailpitMessage, error) {
	resp, err := c.client.Get(c.baseURL + "/api/v1/messages")
	if err != nil {
		return nil, fmt.Errorf("list mailpit messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list mailpit messages: status %d: %s", resp.StatusCode, body)
	}

	var list mailpitListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode mailpit messages: %w", err)
	}
	return list.Messages, nil
}

// GetMessageByID fetches a single message with its rendered text and HTML bodies.
func (c *MailpitClient) GetMessageByID(id string) (*MailpitMessageDetail, error) {
	resp, err := c.client.Get(c.baseURL + "/api/v1/message/" + id)
	if err != nil {
		return nil, fmt.Errorf("get mailpit message %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get mailpit message %s: status %d: %s", id, resp.StatusCode, body)
	}

	var detail MailpitMessageDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, fmt.Errorf("decode mailpit message %s: %w", id, err)
	}
	return &detail, nil
}

// DeleteAllMessages clears the Mailpit mailbox between tests.
func (c *MailpitClient) DeleteAllMessages() error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/api/v1/messages", nil)
	if err != nil {
		return fmt.Errorf("build mailpit delete request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete mailpit messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete mailpit messages: status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// WaitForMessages polls until at least count messages arrive or the timeout
// elapses, returning whatever is in the mailbox at that point.
func (c *MailpitClient) WaitForMessages(count int, timeout time.Duration) ([]MailpitMessage, error) {
	deadline := time.Now().Add(timeout)
	for {
		messages, err := c.GetMessages()
		if err != nil {
			return nil, err
		}
		if len(messages) >= count {
			return messages, nil
		}
		if time.Now().After(deadline) {
			return messages, fmt.Errorf("timed out waiting for %d messages, got %d", count, len(messages))
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// SearchByRecipient returns the messages addressed to the given email.
func (c *MailpitClient) SearchByRecipient(email string) ([]MailpitMessage, error) {
	messages, err := c.GetMessages()
	if err != nil {
		return nil, err
	}

	var matched []MailpitMessage
	for _, msg := range messages {
		for _, to := range msg.To {
			if to.Address == email {
				matched = append(matched, msg)
				break
			}
		}
	}
	return matched, nil
}
