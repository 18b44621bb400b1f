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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT     = "5001"
	DEFAULT_DATABASE = "grantflow"
)

const (
	LockBackendMongo = "mongo"
	LockBackendRedis = "redis"

	PublisherSNS     = "sns"
	PublisherWebhook = "webhook"
	PublisherAsynq   = "asynq"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"GRANTFLOW_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"GRANTFLOW_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"GRANTFLOW_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"GRANTFLOW_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"GRANTFLOW_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"GRANTFLOW_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns      string `json:"dns" envconfig:"GRANTFLOW_DATA_SOURCE_DNS"`
	Database string `json:"database" envconfig:"GRANTFLOW_DATA_SOURCE_DATABASE"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"GRANTFLOW_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"GRANTFLOW_REDIS_SKIP_TLS_VERIFY"`
}

// QueueConfig tunes one claim-based poller. Durations are in seconds.
type QueueConfig struct {
	PollIntervalSec   int `json:"poll_interval_sec"`
	JitterSec         int `json:"jitter_sec"`
	BatchSize         int `json:"batch_size"`
	LeaseTTLSec       int `json:"lease_ttl_sec"`
	MaxRetries        int `json:"max_retries"`
	MaxWorkers        int `json:"max_workers"`
	BackoffInitialSec int `json:"backoff_initial_sec"`
	BackoffMaxSec     int `json:"backoff_max_sec"`
}

func (q QueueConfig) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalSec) * time.Second
}

func (q QueueConfig) Jitter() time.Duration {
	return time.Duration(q.JitterSec) * time.Second
}

func (q QueueConfig) LeaseTTL() time.Duration {
	return time.Duration(q.LeaseTTLSec) * time.Second
}

func (q QueueConfig) BackoffInitial() time.Duration {
	return time.Duration(q.BackoffInitialSec) * time.Second
}

func (q QueueConfig) BackoffMax() time.Duration {
	return time.Duration(q.BackoffMaxSec) * time.Second
}

type LockConfig struct {
	Backend          string `json:"backend" envconfig:"GRANTFLOW_LOCK_BACKEND"`
	TTLSec           int    `json:"ttl_sec"`
	SweepIntervalSec int    `json:"sweep_interval_sec"`
}

func (l LockConfig) TTL() time.Duration {
	return time.Duration(l.TTLSec) * time.Second
}

func (l LockConfig) SweepInterval() time.Duration {
	return time.Duration(l.SweepIntervalSec) * time.Second
}

type PublisherConfig struct {
	Backend         string            `json:"backend" envconfig:"GRANTFLOW_PUBLISHER_BACKEND"`
	Region          string            `json:"region" envconfig:"GRANTFLOW_AWS_REGION"`
	Endpoint        string            `json:"endpoint" envconfig:"GRANTFLOW_AWS_ENDPOINT"`
	DefaultTopicArn string            `json:"default_topic_arn" envconfig:"GRANTFLOW_PUBLISHER_DEFAULT_TOPIC_ARN"`
	Topics          map[string]string `json:"topics"`
	Webhook         WebhookConfig     `json:"webhook"`
	AsynqQueue      string            `json:"asynq_queue"`
	MonitoringPort  string            `json:"monitoring_port" envconfig:"GRANTFLOW_MONITORING_PORT"`
}

// ConsumerConfig maps partner sources to the SQS queues their events arrive on.
type ConsumerConfig struct {
	Region      string            `json:"region" envconfig:"GRANTFLOW_AWS_REGION"`
	Endpoint    string            `json:"endpoint" envconfig:"GRANTFLOW_AWS_ENDPOINT"`
	Queues      map[string]string `json:"queues"`
	WaitSeconds int64             `json:"wait_seconds"`
	MaxMessages int64             `json:"max_messages"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"GRANTFLOW_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"GRANTFLOW_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"GRANTFLOW_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type WebhookConfig struct {
	Url     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

type GrantsConfig struct {
	CacheTTLSec int `json:"cache_ttl_sec"`
}

type TracingConfig struct {
	Endpoint string `json:"endpoint" envconfig:"GRANTFLOW_OTLP_ENDPOINT"`
	Insecure bool   `json:"insecure" envconfig:"GRANTFLOW_OTLP_INSECURE"`
}

type Configuration struct {
	ProjectName         string           `json:"project_name" envconfig:"GRANTFLOW_PROJECT_NAME"`
	Server              ServerConfig     `json:"server"`
	DataSource          DataSourceConfig `json:"data_source"`
	Redis               RedisConfig      `json:"redis"`
	Outbox              QueueConfig      `json:"outbox"`
	Inbox               QueueConfig      `json:"inbox"`
	Lock                LockConfig       `json:"lock"`
	Publisher           PublisherConfig  `json:"publisher"`
	Consumer            ConsumerConfig   `json:"consumer"`
	Notification        Notification     `json:"notification"`
	RateLimit           RateLimitConfig  `json:"rate_limit"`
	Grants              GrantsConfig     `json:"grants"`
	Tracing             TracingConfig    `json:"tracing"`
	EnableTelemetry     bool             `json:"enable_telemetry" envconfig:"GRANTFLOW_ENABLE_TELEMETRY"`
	EnableObservability bool             `json:"enable_observability" envconfig:"GRANTFLOW_ENABLE_OBSERVABILITY"`
	PostHogKey          string           `json:"posthog_key" envconfig:"GRANTFLOW_POSTHOG_KEY"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("grantflow", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called grantflow.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Grantflow"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.DataSource.Database == "" {
		cnf.DataSource.Database = DEFAULT_DATABASE
	}

	cnf.Outbox.addDefaults()
	cnf.Inbox.addDefaults()

	if cnf.Lock.Backend == "" {
		cnf.Lock.Backend = LockBackendMongo
	}
	if cnf.Lock.Backend != LockBackendMongo && cnf.Lock.Backend != LockBackendRedis {
		return fmt.Errorf("unsupported lock backend %q", cnf.Lock.Backend)
	}
	if cnf.Lock.TTLSec <= 0 {
		// a lock must outlive the lease of the record being processed under it
		cnf.Lock.TTLSec = cnf.Inbox.LeaseTTLSec
	}
	if cnf.Lock.SweepIntervalSec <= 0 {
		cnf.Lock.SweepIntervalSec = 60
	}

	if cnf.Publisher.Backend == "" {
		cnf.Publisher.Backend = PublisherWebhook
	}
	switch cnf.Publisher.Backend {
	case PublisherSNS:
		if cnf.Publisher.DefaultTopicArn == "" && len(cnf.Publisher.Topics) == 0 {
			return errors.New("sns publisher requires a default topic arn or a topic map")
		}
	case PublisherWebhook, PublisherAsynq:
	default:
		return fmt.Errorf("unsupported publisher backend %q", cnf.Publisher.Backend)
	}
	if cnf.Publisher.AsynqQueue == "" {
		cnf.Publisher.AsynqQueue = "grantflow_events"
	}
	if cnf.Publisher.MonitoringPort == "" {
		cnf.Publisher.MonitoringPort = "5004"
	}

	if cnf.Consumer.WaitSeconds <= 0 {
		cnf.Consumer.WaitSeconds = 20
	}
	if cnf.Consumer.MaxMessages <= 0 || cnf.Consumer.MaxMessages > 10 {
		cnf.Consumer.MaxMessages = 10
	}

	if cnf.Grants.CacheTTLSec <= 0 {
		cnf.Grants.CacheTTLSec = 300
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (q *QueueConfig) addDefaults() {
	if q.PollIntervalSec <= 0 {
		q.PollIntervalSec = 5
	}
	if q.JitterSec < 0 {
		q.JitterSec = 0
	}
	if q.BatchSize <= 0 {
		q.BatchSize = 25
	}
	if q.LeaseTTLSec <= 0 {
		q.LeaseTTLSec = 60
	}
	if q.MaxRetries <= 0 {
		q.MaxRetries = 5
	}
	if q.MaxWorkers <= 0 {
		q.MaxWorkers = 10
	}
	if q.BackoffInitialSec <= 0 {
		q.BackoffInitialSec = 5
	}
	if q.BackoffMaxSec < q.BackoffInitialSec {
		q.BackoffMaxSec = 300
		if q.BackoffMaxSec < q.BackoffInitialSec {
			q.BackoffMaxSec = q.BackoffInitialSec
		}
	}
}

const redactedValue = "[REDACTED]"

// Redacted returns a copy of the configuration safe to print: keys, webhook URLs,
// header values and connection-string passwords are masked.
func (cnf Configuration) Redacted() Configuration {
	out := cnf
	out.Server.SecretKey = redact(cnf.Server.SecretKey)
	out.PostHogKey = redact(cnf.PostHogKey)
	out.DataSource.Dns = redactDNS(cnf.DataSource.Dns)
	out.Redis.Dns = redactDNS(cnf.Redis.Dns)
	out.Notification.Slack.WebhookUrl = redact(cnf.Notification.Slack.WebhookUrl)
	out.Notification.Webhook.Headers = redactHeaders(cnf.Notification.Webhook.Headers)
	out.Publisher.Webhook.Headers = redactHeaders(cnf.Publisher.Webhook.Headers)
	return out
}

func redact(v string) string {
	if v == "" {
		return ""
	}
	return redactedValue
}

func redactDNS(dns string) string {
	u, err := url.Parse(dns)
	if err != nil || u.User == nil {
		return dns
	}
	return u.Redacted()
}

func redactHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = redact(v)
	}
	return out
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
