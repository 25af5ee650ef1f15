package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/nutrichat/nutrichat/internal/chat"
	"github.com/nutrichat/nutrichat/internal/config"
	"github.com/nutrichat/nutrichat/internal/db"
	"github.com/nutrichat/nutrichat/internal/dify"
	"github.com/nutrichat/nutrichat/internal/logging"
	"github.com/nutrichat/nutrichat/internal/store/rabbitmq"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	gdb := db.Connect(cfg.DBDSN)

	repo := chat.NewRepo(gdb)
	gateway := dify.NewClient(dify.Config{
		BaseURL:          cfg.DifyBaseURL,
		APIKey:           cfg.DifyAPIKey,
		NutritionBaseURL: cfg.DifyNutritionBaseURL,
		NutritionAPIKey:  cfg.DifyNutritionAPIKey,
		Timeout:          cfg.DifyTimeout,
	}, nil, log)
	svc := chat.NewService(repo, gateway, log)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.WithError(err).Fatal("rabbit dial failed")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Fatal("rabbit channel failed")
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.WithError(err).Fatal("queue declare failed")
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.WithError(err).Fatal("qos failed")
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.WithError(err).Fatal("consume failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"queue":       cfg.RabbitQueue,
		"concurrency": concurrency,
	}).Info("worker started")

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wl := log.WithField("worker", workerID)
			for d := range jobs {
				var m rabbitmq.ReplyJobMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					wl.WithError(err).Warn("bad message, dead-lettering")
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, svc, repo, m.JobID); err != nil {
					wl.WithFields(logrus.Fields{
						"job_id": m.JobID,
						"cost":   time.Since(start),
					}).WithError(err).Warn("job failed")
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					wl.WithField("job_id", m.JobID).WithError(err).Warn("ack failed")
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				time.Sleep(time.Second)
				continue
			}
			jobs <- d
		}
	}
}

// handleJob runs one reply job end to end: mark running, call the gateway,
// insert the assistant message, record the outcome on the job row.
func handleJob(ctx context.Context, svc *chat.Service, repo *chat.Repo, jobID string) error {
	_ = repo.UpdateJobStatusRunning(ctx, jobID)

	j, err := repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	reply, err := svc.GenerateReply(ctx, j)
	if err != nil {
		_ = repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	return repo.MarkJobSucceeded(ctx, jobID, reply.ID)
}
