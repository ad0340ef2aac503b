package domain

// Job is the slice of a job record the worker needs to run it
type Job struct {
	JobID          string `db:"job_id"`
	UserID         string `db:"user_id"`
	JobType        string `db:"job_type"`
	Payload        string `db:"payload"`
	RetryCount     int    `db:"retry_count"`
	MaxRetries     int    `db:"max_retries"`
	TimeoutSeconds int    `db:"timeout_seconds"`
	Status         string `db:"-"`
	WorkerID       string `db:"-"`
}

// CanRetry reports whether another attempt is allowed after this one
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// Acknowledger settles a queue delivery. amqp091 deliveries satisfy it.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// JobMessage represents a job message from RabbitMQ
type JobMessage struct {
	JobID       string       `json:"job_id"`
	DeliveryTag uint64       `json:"-"`
	Delivery    Acknowledger `json:"-"`
}
