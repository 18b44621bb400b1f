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
	"fmt"
	"strings"

	"github.com/blnkfinance/grantflow/config"
	"github.com/blnkfinance/grantflow/model"
)

// Publisher delivers an outbound event to a broker destination. A nil error means the
// broker accepted the event.
type Publisher interface {
	Publish(ctx context.Context, destination string, event model.CloudEvent) error
	Close() error
}

// Router resolves the destination of an outbox record.
type Router struct {
	defaultDestination string
	routes             map[string]string
}

func NewRouter(defaultDestination string, routes map[string]string) Router {
	return Router{defaultDestination: defaultDestination, routes: routes}
}

// Resolve returns the record's pinned destination, else the route for its event type,
// else the route for the longest matching type prefix, else the default.
func (r Router) Resolve(record *model.QueueRecord) string {
	if record.Destination != "" {
		return record.Destination
	}
	eventType := record.Payload.Type
	if dest, ok := r.routes[eventType]; ok {
		return dest
	}

	best := ""
	dest := r.defaultDestination
	for prefix, d := range r.routes {
		if strings.HasSuffix(prefix, "*") {
			p := strings.TrimSuffix(prefix, "*")
			if strings.HasPrefix(eventType, p) && len(p) > len(best) {
				best, dest = p, d
			}
		}
	}
	return dest
}

// New builds the publisher selected by the configuration together with its router.
func New(cfg *config.Configuration) (Publisher, Router, error) {
	pc := cfg.Publisher
	switch pc.Backend {
	case config.PublisherSNS:
		p, err := NewSNSPublisher(pc.Region, pc.Endpoint)
		if err != nil {
			return nil, Router{}, err
		}
		return p, NewRouter(pc.DefaultTopicArn, pc.Topics), nil
	case config.PublisherWebhook:
		return NewWebhookPublisher(pc.Webhook.Url, pc.Webhook.Headers), NewRouter("", pc.Topics), nil
	case config.PublisherAsynq:
		p, err := NewAsynqPublisher(cfg.Redis.Dns, cfg.Redis.SkipTLSVerify)
		if err != nil {
			return nil, Router{}, err
		}
		return p, NewRouter(pc.AsynqQueue, pc.Topics), nil
	default:
		return nil, Router{}, fmt.Errorf("unsupported publisher backend %q", pc.Backend)
	}
}
