package main

import (
	"fmt"

	"github.com/unclebandit/campaign-mailer/internal/config"
)

// checkQueueDriver rejects the memory queue: jobs published by the server
// would never reach a separate worker process.
func checkQueueDriver(cfg config.Config) error {
	if cfg.QueueDriver != "amqp" {
		return fmt.Errorf("QUEUE_DRIVER=%s cannot be consumed out of process; set QUEUE_DRIVER=amqp or let the server dispatch", cfg.QueueDriver)
	}
	return nil
}
