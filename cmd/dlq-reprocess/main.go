// dlq-reprocess возвращает записи DLQ учёта в рабочие топики.
//
// Команды, которые consumer не смог обработать, лежат в DLQ как
// kafka.DeadLetter и уходят обратно в исходный топик команд. События outbox,
// исчерпавшие попытки публикации, приходят конвертом kafka.LedgerEvent с типом
// "<event>.dlq" и восстанавливаются в топик событий. Без -execute утилита
// только перечисляет кандидатов.
package main

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/muzbazar/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/outbox"
)

const (
	defaultLimit       = 100
	defaultIdleTimeout = 2 * time.Second
	toolClientID       = "muzbazar-dlq-reprocess"

	envBrokers = "LEDGER_KAFKA_BROKERS"

	headerReplayedFrom = "x-replayed-from"
)

// replayKind ограничивает, какие записи DLQ переигрываются.
type replayKind string

const (
	kindAll      replayKind = "all"
	kindCommands replayKind = "commands"
	kindEvents   replayKind = "events"
)

func parseReplayKind(raw string) (replayKind, error) {
	switch kind := replayKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case kindAll, kindCommands, kindEvents:
		return kind, nil
	case "":
		return kindAll, nil
	default:
		return "", fmt.Errorf("unsupported kind %q (all, commands, events)", raw)
	}
}

func (k replayKind) accepts(other replayKind) bool {
	return k == kindAll || k == other
}

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	kind        replayKind
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// dlqSource читает разделы топика DLQ.
type dlqSource interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, at int64) (int64, error)
	ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error)
	Close() error
}

type partitionStream interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type sender interface {
	Send(msg kafka.Message) error
	Close() error
}

type saramaSource struct {
	sarama.Client
	consumer sarama.Consumer
}

func (s saramaSource) ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error) {
	return s.consumer.ConsumePartition(topic, partition, offset)
}

func (s saramaSource) Close() error {
	_ = s.consumer.Close()
	return s.Client.Close()
}

// connect открывает источник DLQ и, в режиме -execute, producer.
var connect = func(cfg config, logger *log.Entry) (dlqSource, sender, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = toolClientID
	saramaCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, saramaCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	src := saramaSource{Client: client, consumer: consumer}
	if !cfg.execute {
		return src, nil, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers,
		kafka.WithClientID(toolClientID),
		kafka.WithProducerLogger(logger.WithField("component", "kafka-producer")),
	)
	if err != nil {
		_ = src.Close()
		return nil, nil, err
	}
	return src, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := readConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := run(ctx, cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg        config
		brokersRaw string
		kindRaw    string
	)
	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.StringVar(&brokersRaw, "brokers", "", "comma-separated Kafka brokers (fallback: "+envBrokers+")")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicLedgerEvents, "topic for restored outbox events")
	fs.StringVar(&kindRaw, "kind", string(kindAll), "records to replay: all|commands|events")
	fs.IntVar(&cfg.limit, "limit", defaultLimit, "max records to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish records instead of listing them")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "start from the newest records of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this much silence")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = getenv(envBrokers)
	}
	cfg.brokers = splitBrokers(brokersRaw)
	cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)
	cfg.targetTopic = strings.TrimSpace(cfg.targetTopic)

	kind, err := parseReplayKind(kindRaw)
	if err != nil {
		return config{}, err
	}
	cfg.kind = kind

	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", envBrokers)
	case cfg.sourceTopic == "" || cfg.targetTopic == "":
		return config{}, errors.New("source-topic and target-topic are required")
	case cfg.sourceTopic == cfg.targetTopic:
		return config{}, errors.New("target-topic must differ from source-topic")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, part := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(part); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) (replayStats, error) {
	logger := log.WithField("component", "dlq-reprocess")
	logger.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"kind":         cfg.kind,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
	}).Info("starting dlq replay")

	src, out, err := connect(cfg, logger)
	if err != nil {
		return replayStats{}, err
	}
	defer func() {
		if out != nil {
			_ = out.Close()
		}
		_ = src.Close()
	}()

	r := &replayer{
		cfg:    cfg,
		src:    src,
		out:    out,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	return r.run(ctx)
}

type replayStats struct {
	scanned  int
	replayed int
	skipped  int
	commands int
	events   int
}

type replayer struct {
	cfg    config
	src    dlqSource
	out    sender
	logger *log.Entry
	now    func() time.Time
}

func (r *replayer) run(ctx context.Context) (replayStats, error) {
	var stats replayStats
	if r.cfg.execute && r.out == nil {
		return stats, errors.New("execute mode needs a producer")
	}

	partitions, err := r.src.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return stats, fmt.Errorf("list partitions of %s: %w", r.cfg.sourceTopic, err)
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		budget := r.cfg.limit - stats.scanned
		if budget <= 0 {
			break
		}
		if err := r.drainPartition(ctx, partition, budget, &stats); err != nil {
			return stats, err
		}
	}

	r.logger.WithFields(log.Fields{
		"execute":  r.cfg.execute,
		"scanned":  stats.scanned,
		"replayed": stats.replayed,
		"skipped":  stats.skipped,
		"commands": stats.commands,
		"events":   stats.events,
	}).Info("dlq replay finished")
	return stats, nil
}

// drainPartition читает раздел до конца, зафиксированного на старте,
// но не больше budget записей и не дольше idleTimeout без новых сообщений.
func (r *replayer) drainPartition(ctx context.Context, partition int32, budget int, stats *replayStats) error {
	topic := r.cfg.sourceTopic
	first, err := r.src.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	end, err := r.src.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if end <= first {
		return nil
	}

	start := first
	if r.cfg.fromNewest {
		start = max(first, end-int64(budget))
	}
	stream, err := r.src.ConsumePartition(topic, partition, start)
	if err != nil {
		return fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = stream.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for seen := 0; seen < budget; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			r.logger.WithField("partition", partition).Debug("partition idle, moving on")
			return nil
		case cerr, ok := <-stream.Errors():
			if !ok {
				return nil
			}
			return fmt.Errorf("partition %d: %w", partition, cerr)
		case msg, ok := <-stream.Messages():
			if !ok || msg == nil || msg.Offset >= end {
				return nil
			}
			idle.Reset(r.cfg.idleTimeout)
			seen++
			if err := r.handle(msg, stats); err != nil {
				return err
			}
			if msg.Offset+1 >= end {
				return nil
			}
		}
	}
	return nil
}

func (r *replayer) handle(msg *sarama.ConsumerMessage, stats *replayStats) error {
	stats.scanned++
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	rec, err := decodeDeadLetter(msg.Value, r.cfg.targetTopic, r.now())
	switch {
	case err != nil:
		stats.skipped++
		entry.WithError(err).Warn("skip unreadable dlq record")
		return nil
	case rec == nil || !r.cfg.kind.accepts(rec.kind):
		stats.skipped++
		return nil
	}

	if rec.kind == kindCommands {
		stats.commands++
	} else {
		stats.events++
	}
	entry = entry.WithFields(log.Fields{"kind": rec.kind, "target_topic": rec.Topic, "key": rec.Key})

	if r.cfg.execute {
		rec.Headers = map[string]string{headerReplayedFrom: r.cfg.sourceTopic}
		if err := r.out.Send(rec.Message); err != nil {
			return fmt.Errorf("replay offset %d: %w", msg.Offset, err)
		}
		entry.Debug("dlq record replayed")
	} else {
		entry.Info("dlq replay candidate")
	}
	stats.replayed++
	return nil
}

// replayRecord — запись DLQ, восстановленная в исходное сообщение.
type replayRecord struct {
	kind replayKind
	kafka.Message
}

// decodeDeadLetter восстанавливает сообщение из записи DLQ. Для записей
// неизвестного формата возвращает nil без ошибки.
func decodeDeadLetter(value []byte, eventsTopic string, now time.Time) (*replayRecord, error) {
	var letter kafka.DeadLetter
	if err := json.Unmarshal(value, &letter); err == nil && letter.OriginalValue != "" {
		return &replayRecord{
			kind: kindCommands,
			Message: kafka.Message{
				Topic: cmp.Or(strings.TrimSpace(letter.OriginalTopic), kafka.TopicLedgerCommands),
				Key:   letter.OriginalKey,
				Value: []byte(letter.OriginalValue),
			},
		}, nil
	}

	envelope, err := kafka.ParseLedgerEvent(value)
	if err != nil || len(envelope.Payload) == 0 || !strings.HasSuffix(envelope.EventType, outbox.DeadLetterSuffix) {
		return nil, nil
	}

	var dead outbox.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &dead); err != nil {
		return nil, fmt.Errorf("decode outbox dead letter: %w", err)
	}
	if len(dead.Payload) == 0 {
		return nil, errors.New("outbox dead letter has no original payload")
	}

	event := kafka.LedgerEvent{
		ID:            cmp.Or(dead.OutboxID, envelope.ID),
		AggregateType: cmp.Or(dead.AggregateType, envelope.AggregateType),
		AggregateID:   cmp.Or(dead.AggregateID, envelope.AggregateID),
		EventType:     cmp.Or(dead.EventType, strings.TrimSuffix(envelope.EventType, outbox.DeadLetterSuffix)),
		Payload:       dead.Payload,
		PublishedAt:   now,
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode restored event: %w", err)
	}
	return &replayRecord{
		kind:    kindEvents,
		Message: kafka.Message{Topic: eventsTopic, Key: cmp.Or(event.AggregateID, event.ID), Value: encoded},
	}, nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
