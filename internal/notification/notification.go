/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/grantflow/config"
	"github.com/blnkfinance/grantflow/internal/request"
	"github.com/blnkfinance/grantflow/model"
)

// SlackNotification sends an error message to the configured Slack webhook.
func SlackNotification(err error) {
	data := json.RawMessage(fmt.Sprintf(`{
		"blocks": [
			{
				"type": "header",
				"text": {
					"type": "plain_text",
					"text": "Error From Grantflow 🐞",
					"emoji": true
				}
			},
			{
				"type": "section",
				"fields": [
					{
						"type": "mrkdwn",
						"text": "*Error:*\n%v"
					}
				]
			},
			{
				"type": "section",
				"fields": [
					{
						"type": "mrkdwn",
						"text": "*Time:*\n%v"
					}
				]
			}
		]
	}`, jsonEscape(err.Error()), time.Now().Format(time.RFC822)))

	conf, err := config.Fetch()
	if err != nil {
		logrus.Error(err)
		return
	}

	if _, err := request.PostJSON(context.Background(), conf.Notification.Slack.WebhookUrl, nil, &data, nil); err != nil {
		logrus.WithError(err).Error("slack notification failed")
	}
}

// WebhookNotification posts an alert to the configured notification webhook.
func WebhookNotification(event string, payload interface{}) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	body := map[string]interface{}{
		"event": event,
		"data":  payload,
		"time":  time.Now().UTC(),
	}
	_, err = request.PostJSON(context.Background(), conf.Notification.Webhook.Url, conf.Notification.Webhook.Headers, body, nil)
	return err
}

// NotifyError logs the error and fans it out to the configured alert channels without
// blocking the caller.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			logrus.Error(err)
			return
		}

		if conf.Notification.Slack.WebhookUrl != "" {
			SlackNotification(systemError)
		}
	}(systemError)
}

// NotifyDeadLetter raises an operator alert for a queue record that exhausted its retries.
func NotifyDeadLetter(queue string, record *model.QueueRecord) {
	NotifyError(fmt.Errorf("%s record %s (%s) failed after %d attempts: %s",
		queue, record.ID, record.Payload.Type, record.CompletionAttempts, record.LastError))

	conf, err := config.Fetch()
	if err != nil || conf.Notification.Webhook.Url == "" {
		return
	}
	go func() {
		if err := WebhookNotification("queue.record.failed", map[string]interface{}{
			"queue":               queue,
			"id":                  record.ID,
			"type":                record.Payload.Type,
			"segregation_ref":     record.SegregationRef,
			"completion_attempts": record.CompletionAttempts,
			"last_error":          record.LastError,
		}); err != nil {
			logrus.WithError(err).Error("dead letter webhook failed")
		}
	}()
}

func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}
