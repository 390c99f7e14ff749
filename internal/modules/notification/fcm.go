// README: Firebase Cloud Messaging sender.
package notification

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
)

type FCMSender struct {
	client *messaging.Client
}

func NewFCMSender(client *messaging.Client) *FCMSender {
	return &FCMSender{client: client}
}

// Send pushes cmd to every token and returns the error of the first failed token, if any.
func (s *FCMSender) Send(ctx context.Context, tokens []string, cmd Command) error {
	if len(tokens) == 0 {
		return nil
	}
	data := map[string]string{"kind": string(cmd.Kind)}
	for k, v := range cmd.Data {
		data[k] = v
	}
	resp, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens:       tokens,
		Data:         data,
		Notification: &messaging.Notification{Title: cmd.Title, Body: cmd.Body},
		Android:      &messaging.AndroidConfig{Priority: priorityFor(cmd.Kind)},
	})
	if err != nil {
		return fmt.Errorf("fcm multicast to %s: %w", cmd.RecipientID, err)
	}
	if resp.FailureCount > 0 {
		for i, r := range resp.Responses {
			if !r.Success {
				return fmt.Errorf("fcm token %d/%d for %s: %w", i+1, len(tokens), cmd.RecipientID, r.Error)
			}
		}
	}
	return nil
}

func priorityFor(k Kind) string {
	if k == KindEmergency || k == KindAttendance {
		return "high"
	}
	return "normal"
}
