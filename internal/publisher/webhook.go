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

package publisher

import (
	"context"

	"github.com/blnkfinance/grantflow/internal/request"
	"github.com/blnkfinance/grantflow/model"
)

// WebhookPublisher posts events to a subscriber URL in CloudEvents structured mode.
type WebhookPublisher struct {
	url     string
	headers map[string]string
}

func NewWebhookPublisher(url string, headers map[string]string) *WebhookPublisher {
	return &WebhookPublisher{url: url, headers: headers}
}

// Publish posts to destination when set, else to the configured URL. Any non-2xx
// answer is a failed delivery.
func (p *WebhookPublisher) Publish(ctx context.Context, destination string, event model.CloudEvent) error {
	url := p.url
	if destination != "" {
		url = destination
	}

	headers := map[string]string{"Content-Type": "application/cloudevents+json"}
	for k, v := range p.headers {
		headers[k] = v
	}
	_, err := request.PostJSON(ctx, url, headers, event, nil)
	return err
}

func (p *WebhookPublisher) Close() error { return nil }
