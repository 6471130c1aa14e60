package queue

import (
	"fmt"
	"time"

	"github.com/offshore-atlas/backend/internal/util"
	"github.com/offshore-atlas/backend/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// Queue names consumed by the ETL worker.
const (
	SeedQueue     = "seed_queue"
	AnnotateQueue = "annotate_queue"
)

// Queues lists every queue the worker consumes, in priority order.
var Queues = []string{SeedQueue, AnnotateQueue}

func Init() *amqp091.Connection {
	user := util.GetEnv("RABBITMQ_USER")
	pass := util.GetEnv("RABBITMQ_PASSWORD")
	host := util.GetEnv("RABBITMQ_HOST")
	port := util.GetEnv("RABBITMQ_PORT")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	// The broker may still be starting when the worker comes up.
	conn, err := util.Retry(5, func() (*amqp091.Connection, error) {
		return amqp091.Dial(connURL)
	})
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

// SetupQueues declares each work queue with its retry and dead-letter
// companions. The retry queue holds failed messages for a TTL and then
// routes them back onto the work queue.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	for _, name := range queueNames {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			logger.Fatal("QueueDeclare failed", "queue", name, "err", err)
		}

		dlqName := name + "_dlq"
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			logger.Fatal("QueueDeclare failed", "queue", dlqName, "err", err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(10000),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			logger.Fatal("QueueDeclare failed", "queue", retryName, "err", err)
		}
	}

	return nil
}

func PublishFIFO(ch *amqp091.Channel, queueName string, data []byte) error {
	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return util.RetryErr(3, func() error {
		return ch.Publish(
			"",
			q.Name,
			false,
			false,
			publishing,
		)
	})
}
