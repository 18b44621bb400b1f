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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"

	"github.com/blnkfinance/grantflow/config"
	"github.com/blnkfinance/grantflow/internal/consumer"
	"github.com/blnkfinance/grantflow/internal/lock"
	"github.com/blnkfinance/grantflow/internal/poller"
	redis_db "github.com/blnkfinance/grantflow/internal/redis-db"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

// initializeLocker builds the FIFO lock backend named in the configuration. The Mongo
// backend also runs the stale-lock sweeper until ctx is cancelled.
func initializeLocker(ctx context.Context, b *grantflowInstance) (lock.Locker, func(), error) {
	conf := b.cnf
	switch conf.Lock.Backend {
	case config.LockBackendRedis:
		client, err := redis_db.NewRedisClient([]string{conf.Redis.Dns}, conf.Redis.SkipTLSVerify)
		if err != nil {
			return nil, nil, fmt.Errorf("error connecting lock redis: %v", err)
		}
		return lock.NewRedisLocker(client.Client()), func() { _ = client.Close() }, nil
	default:
		locker := lock.NewMongoLocker(b.grantflow.Datasource())
		go locker.RunSweeper(ctx, conf.Lock.TTL(), conf.Lock.SweepInterval())
		return locker, func() {}, nil
	}
}

// startConsumers starts one SQS consumer per configured partner queue.
func startConsumers(ctx context.Context, b *grantflowInstance) error {
	queues := b.cnf.Consumer.Queues
	if len(queues) == 0 {
		logrus.Info("no sqs queues configured, inbox is fed by the http api only")
		return nil
	}

	sess, err := consumer.NewSession(b.cnf.Consumer.Region, b.cnf.Consumer.Endpoint)
	if err != nil {
		return fmt.Errorf("error creating aws session: %v", err)
	}
	client := sqs.New(sess)

	for source, queueURL := range queues {
		c := consumer.NewSQSConsumer(client, b.grantflow, consumer.Options{
			QueueURL:    queueURL,
			Source:      source,
			WaitSeconds: b.cnf.Consumer.WaitSeconds,
			MaxMessages: b.cnf.Consumer.MaxMessages,
		})
		go c.Run(ctx)
	}
	return nil
}

// startMonitoring serves asynqmon when outbound events are published to asynq.
func startMonitoring(conf *config.Configuration) {
	if conf.Publisher.Backend != config.PublisherAsynq {
		return
	}
	opt, err := redis_db.AsynqClientOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		logrus.WithError(err).Error("asynqmon disabled")
		return
	}

	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: opt,
	})

	go func() {
		monitoringAddr := fmt.Sprintf(":%s", conf.Publisher.MonitoringPort)
		log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
		if err := http.ListenAndServe(monitoringAddr, h); err != nil {
			logrus.WithError(err).Error("could not start asynqmon server")
		}
	}()
}

// workerCommands defines the "workers" command: the outbox and inbox pollers, the SQS
// consumers feeding the inbox and, for the Mongo backend, the lock sweeper.
func workerCommands(b *grantflowInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start grantflow workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			phClient, shutdown, err := initializeObservability(ctx, b.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()
			if phClient != nil {
				defer phClient.Close()
			}
			defer b.grantflow.Close()

			locker, closeLocker, err := initializeLocker(ctx, b)
			if err != nil {
				log.Fatal(err)
			}
			defer closeLocker()

			pollers := []*poller.Poller{
				b.grantflow.NewOutboxPoller(b.cnf, locker),
				b.grantflow.NewInboxPoller(b.cnf, locker),
			}
			for _, p := range pollers {
				p.Start(ctx)
			}

			if err := startConsumers(ctx, b); err != nil {
				log.Fatal(err)
			}
			startMonitoring(b.cnf)

			<-ctx.Done()
			logrus.Info("shutting down workers")
			for _, p := range pollers {
				p.Stop()
			}
		},
	}

	return cmd
}
