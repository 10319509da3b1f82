// eventtail follows the booking-events topic and prints each lifecycle event
// as a line of JSON. Useful when checking that accepted or settled bookings
// actually reach the broker.
package main

import (
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/hamba/avro/v2"
	"github.com/riferrei/srclient"

	"fadedreams/roadassist/events"
)

func main() {
	bootstrap := flag.String("bootstrap", "localhost:9094", "Kafka bootstrap servers")
	registry := flag.String("registry", "http://localhost:8081", "schema registry URL")
	topic := flag.String("topic", "booking-events", "topic to follow")
	group := flag.String("group", "eventtail", "consumer group id")
	flag.Parse()

	client := srclient.CreateSchemaRegistryClient(*registry)

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": *bootstrap,
		"group.id":          *group,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create consumer: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	if err := c.SubscribeTopics([]string{*topic}, nil); err != nil {
		fmt.Fprintf(os.Stderr, "failed to subscribe to %s: %v\n", *topic, err)
		os.Exit(1)
	}

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Fprintf(os.Stderr, "following %s, Ctrl+C to stop\n", *topic)

	for {
		select {
		case sig := <-sigchan:
			fmt.Fprintf(os.Stderr, "caught signal %v: terminating\n", sig)
			return
		default:
			msg, err := c.ReadMessage(-1)
			if err != nil {
				if kafkaErr, ok := err.(kafka.Error); ok && kafkaErr.Code() == kafka.ErrTimedOut {
					continue
				}
				fmt.Fprintf(os.Stderr, "consumer error: %v\n", err)
				return
			}
			event, err := decode(client, msg.Value)
			if err != nil {
				fmt.Fprintf(os.Stderr, "skipping message at %v: %v\n", msg.TopicPartition, err)
				continue
			}
			line, err := json.Marshal(event)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to render event: %v\n", err)
				continue
			}
			fmt.Println(string(line))
		}
	}
}

// decode strips the schema-registry framing (magic byte plus big-endian
// schema id) and unmarshals the Avro body against the registered schema.
func decode(client *srclient.SchemaRegistryClient, value []byte) (*events.BookingEvent, error) {
	if len(value) < 5 {
		return nil, fmt.Errorf("message too short for registry framing")
	}
	if value[0] != 0 {
		return nil, fmt.Errorf("unexpected magic byte %#x", value[0])
	}
	schemaID := binary.BigEndian.Uint32(value[1:5])

	schemaObj, err := client.GetSchema(int(schemaID))
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve schema %d: %w", schemaID, err)
	}
	schema, err := avro.Parse(schemaObj.Schema())
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema %d: %w", schemaID, err)
	}

	var event events.BookingEvent
	if err := avro.Unmarshal(schema, value[5:], &event); err != nil {
		return nil, fmt.Errorf("failed to deserialize event: %w", err)
	}
	return &event, nil
}
