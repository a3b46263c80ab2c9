// Package rabbitmq provides a RabbitMQ message producer with publisher
// confirms. A message counts as dispatched only after the broker acks
// it, which is what the outbox lifecycle requires before an entry may
// transition to dispatched.
package rabbitmq
