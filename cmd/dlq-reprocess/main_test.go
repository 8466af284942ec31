package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/outbox"
)

var replayNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func commandLetter(t *testing.T, clientID string) []byte {
	t.Helper()

	raw, err := json.Marshal(kafka.DeadLetter{
		OriginalTopic:  kafka.TopicLedgerCommands,
		OriginalOffset: 41,
		OriginalKey:    clientID,
		OriginalValue:  `{"type":"apply_payment","client_id":"` + clientID + `","amount":5000}`,
		ErrorMessage:   "client not found",
		FailedAt:       "2026-03-30T08:00:00Z",
		RetryCount:     3,
	})
	require.NoError(t, err)
	return raw
}

// eventLetter повторяет то, что outbox worker кладёт в DLQ через kafka publisher.
func eventLetter(t *testing.T, clientID string) []byte {
	t.Helper()

	dead, err := json.Marshal(outbox.DeadLetter{
		OutboxID:      "evt-" + clientID,
		AggregateType: "client",
		AggregateID:   clientID,
		EventType:     domain.EventPaymentApplied,
		Payload:       json.RawMessage(`{"client_id":"` + clientID + `","amount":2500}`),
		PublishError:  "kafka: client has run out of available brokers",
		Attempts:      3,
		FailedAt:      replayNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	return ledgerEnvelope(t, clientID, domain.EventPaymentApplied+outbox.DeadLetterSuffix, dead)
}

func ledgerEnvelope(t *testing.T, aggregateID, eventType string, payload []byte) []byte {
	t.Helper()

	raw, err := json.Marshal(kafka.LedgerEvent{
		ID:            "dlq-" + aggregateID,
		AggregateType: "client",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		PublishedAt:   replayNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	return raw
}

func TestReadConfig(t *testing.T) {
	env := map[string]string{envBrokers: "env-broker:9092"}
	getenv := func(k string) string { return env[k] }

	cfg, err := readConfig([]string{
		"-brokers= k1:9092, ,k2:9092 ",
		"-source-topic=ledger.dlq",
		"-target-topic=ledger.events",
		"-kind=Commands",
		"-limit=7",
		"-execute",
		"-from-newest",
		"-idle-timeout=3s",
	}, getenv)
	require.NoError(t, err)
	require.Equal(t, config{
		brokers:     []string{"k1:9092", "k2:9092"},
		sourceTopic: "ledger.dlq",
		targetTopic: "ledger.events",
		kind:        kindCommands,
		limit:       7,
		execute:     true,
		fromNewest:  true,
		idleTimeout: 3 * time.Second,
	}, cfg)

	cfg, err = readConfig(nil, getenv)
	require.NoError(t, err)
	require.Equal(t, []string{"env-broker:9092"}, cfg.brokers)
	require.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
	require.Equal(t, kafka.TopicLedgerEvents, cfg.targetTopic)
	require.Equal(t, kindAll, cfg.kind)
	require.Equal(t, defaultLimit, cfg.limit)
	require.False(t, cfg.execute)
}

func TestReadConfig_Errors(t *testing.T) {
	noEnv := func(string) string { return "" }

	cases := map[string]struct {
		args []string
		want string
	}{
		"no brokers":    {args: nil, want: envBrokers},
		"same topics":   {args: []string{"-brokers=k:9092", "-target-topic=" + kafka.TopicDeadLetterQueue}, want: "must differ"},
		"empty target":  {args: []string{"-brokers=k:9092", "-target-topic= "}, want: "required"},
		"bad kind":      {args: []string{"-brokers=k:9092", "-kind=orders"}, want: "unsupported kind"},
		"zero limit":    {args: []string{"-brokers=k:9092", "-limit=0"}, want: "limit must be > 0"},
		"zero idle":     {args: []string{"-brokers=k:9092", "-idle-timeout=0s"}, want: "idle-timeout must be > 0"},
		"unknown flag":  {args: []string{"-brokers=k:9092", "-replay-all"}, want: "replay-all"},
		"malformed int": {args: []string{"-brokers=k:9092", "-limit=many"}, want: "limit"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := readConfig(tc.args, noEnv)
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestParseReplayKind(t *testing.T) {
	for raw, want := range map[string]replayKind{"": kindAll, " ALL ": kindAll, "events": kindEvents, "commands": kindCommands} {
		got, err := parseReplayKind(raw)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := parseReplayKind("payments")
	require.Error(t, err)

	require.True(t, kindAll.accepts(kindEvents))
	require.False(t, kindCommands.accepts(kindEvents))
}

func TestDecodeDeadLetter_Command(t *testing.T) {
	rec, err := decodeDeadLetter(commandLetter(t, "c-7"), kafka.TopicLedgerEvents, replayNow)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, kindCommands, rec.kind)
	require.Equal(t, kafka.TopicLedgerCommands, rec.Topic)
	require.Equal(t, "c-7", rec.Key)

	cmd, err := kafka.ParseCommand(rec.Value)
	require.NoError(t, err)
	require.Equal(t, kafka.CommandApplyPayment, cmd.Type)
	require.Equal(t, int64(5000), cmd.Amount)

	noTopic, err := json.Marshal(kafka.DeadLetter{OriginalKey: "c-1", OriginalValue: `{"type":"set_status"}`})
	require.NoError(t, err)
	rec, err = decodeDeadLetter(noTopic, kafka.TopicLedgerEvents, replayNow)
	require.NoError(t, err)
	require.Equal(t, kafka.TopicLedgerCommands, rec.Topic)
}

func TestDecodeDeadLetter_OutboxEvent(t *testing.T) {
	rec, err := decodeDeadLetter(eventLetter(t, "c-3"), "ledger.events.v2", replayNow)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, kindEvents, rec.kind)
	require.Equal(t, "ledger.events.v2", rec.Topic)
	require.Equal(t, "c-3", rec.Key)

	event, err := kafka.ParseLedgerEvent(rec.Value)
	require.NoError(t, err)
	require.Equal(t, "evt-c-3", event.ID)
	require.Equal(t, domain.EventPaymentApplied, event.EventType)
	require.Equal(t, "client", event.AggregateType)
	require.True(t, replayNow.Equal(event.PublishedAt))
	require.JSONEq(t, `{"client_id":"c-3","amount":2500}`, string(event.Payload))
}

func TestDecodeDeadLetter_Unrecognised(t *testing.T) {
	for name, value := range map[string][]byte{
		"not json":      []byte("not-json"),
		"regular event": ledgerEnvelope(t, "c-1", domain.EventPaymentApplied, []byte(`{"amount":1}`)),
		"empty object":  []byte(`{}`),
	} {
		rec, err := decodeDeadLetter(value, kafka.TopicLedgerEvents, replayNow)
		require.NoError(t, err, name)
		require.Nil(t, rec, name)
	}

	dlqType := domain.EventPaymentApplied + outbox.DeadLetterSuffix
	_, err := decodeDeadLetter(ledgerEnvelope(t, "c-1", dlqType, []byte(`"text"`)), kafka.TopicLedgerEvents, replayNow)
	require.ErrorContains(t, err, "decode outbox dead letter")

	_, err = decodeDeadLetter(ledgerEnvelope(t, "c-1", dlqType, []byte(`{"outbox_id":"evt-1"}`)), kafka.TopicLedgerEvents, replayNow)
	require.ErrorContains(t, err, "no original payload")
}

func TestReplayer_DryRunCountsRecords(t *testing.T) {
	src := newFakeSource()
	src.add(0, commandLetter(t, "c-1"), eventLetter(t, "c-2"), []byte("garbage"))
	src.add(1, commandLetter(t, "c-3"))

	stats, err := newTestReplayer(testConfig(), src, nil).run(context.Background())
	require.NoError(t, err)
	require.Equal(t, replayStats{scanned: 4, replayed: 3, skipped: 1, commands: 2, events: 1}, stats)
	require.Equal(t, map[int32]int64{0: 0, 1: 0}, src.startedAt)
}

func TestReplayer_KindFilter(t *testing.T) {
	src := newFakeSource()
	src.add(0, commandLetter(t, "c-1"), eventLetter(t, "c-2"))

	cfg := testConfig()
	cfg.kind = kindEvents
	cfg.execute = true
	out := &recordingSender{}

	stats, err := newTestReplayer(cfg, src, out).run(context.Background())
	require.NoError(t, err)
	require.Equal(t, replayStats{scanned: 2, replayed: 1, skipped: 1, events: 1}, stats)
	require.Len(t, out.sent, 1)
	require.Equal(t, kafka.TopicLedgerEvents, out.sent[0].Topic)
}

func TestReplayer_ExecuteMarksReplayedFrom(t *testing.T) {
	src := newFakeSource()
	src.add(0, commandLetter(t, "c-1"))

	cfg := testConfig()
	cfg.execute = true
	out := &recordingSender{}

	_, err := newTestReplayer(cfg, src, out).run(context.Background())
	require.NoError(t, err)
	require.Len(t, out.sent, 1)
	require.Equal(t, kafka.TopicLedgerCommands, out.sent[0].Topic)
	require.Equal(t, "c-1", out.sent[0].Key)
	require.Equal(t, map[string]string{headerReplayedFrom: kafka.TopicDeadLetterQueue}, out.sent[0].Headers)
}

func TestReplayer_LimitAndFromNewest(t *testing.T) {
	letters := make([][]byte, 10)
	for i := range letters {
		letters[i] = commandLetter(t, "c-1")
	}

	src := newFakeSource()
	src.add(0, letters...)
	src.add(1, letters[:2]...)

	cfg := testConfig()
	cfg.limit = 3
	cfg.fromNewest = true

	stats, err := newTestReplayer(cfg, src, nil).run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, stats.scanned)
	require.Equal(t, map[int32]int64{0: 7}, src.startedAt)

	src = newFakeSource()
	src.add(0, letters...)
	cfg.fromNewest = false
	stats, err = newTestReplayer(cfg, src, nil).run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, stats.scanned)
	require.Equal(t, int64(0), src.startedAt[0])
}

func TestReplayer_EmptyPartitionSkipped(t *testing.T) {
	src := newFakeSource()
	src.add(0)

	stats, err := newTestReplayer(testConfig(), src, nil).run(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.scanned)
	require.Empty(t, src.startedAt)
}

func TestReplayer_IdleTimeout(t *testing.T) {
	src := newFakeSource()
	src.add(0, commandLetter(t, "c-1"))
	src.parts[0].end = 5

	cfg := testConfig()
	cfg.idleTimeout = 20 * time.Millisecond

	stats, err := newTestReplayer(cfg, src, nil).run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.scanned)
}

func TestReplayer_ContextCancelled(t *testing.T) {
	src := newFakeSource()
	src.add(0)
	src.parts[0].end = 5

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestReplayer(testConfig(), src, nil).run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestReplayer_Errors(t *testing.T) {
	boom := errors.New("broker gone")

	cases := map[string]struct {
		setup func(*fakeSource, *config, *recordingSender)
		want  string
	}{
		"partitions": {
			setup: func(s *fakeSource, _ *config, _ *recordingSender) { s.partitionsErr = boom },
			want:  "list partitions",
		},
		"offsets": {
			setup: func(s *fakeSource, _ *config, _ *recordingSender) { s.offsetErr = boom },
			want:  "oldest offset",
		},
		"consume": {
			setup: func(s *fakeSource, _ *config, _ *recordingSender) { s.consumeErr = boom },
			want:  "consume partition 0",
		},
		"stream": {
			setup: func(s *fakeSource, _ *config, _ *recordingSender) {
				s.parts[0].records = nil
				s.streamErr = boom
			},
			want: "broker gone",
		},
		"send": {
			setup: func(_ *fakeSource, c *config, out *recordingSender) {
				c.execute = true
				out.err = boom
			},
			want: "replay offset 0",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			src := newFakeSource()
			src.add(0, commandLetter(t, "c-1"))
			cfg := testConfig()
			out := &recordingSender{}
			tc.setup(src, &cfg, out)

			_, err := newTestReplayer(cfg, src, out).run(context.Background())
			require.ErrorContains(t, err, tc.want)
		})
	}

	cfg := testConfig()
	cfg.execute = true
	_, err := newTestReplayer(cfg, newFakeSource(), nil).run(context.Background())
	require.ErrorContains(t, err, "needs a producer")
}

func TestRun_ClosesConnections(t *testing.T) {
	src := newFakeSource()
	src.add(0, commandLetter(t, "c-1"))
	out := &recordingSender{}
	stubConnect(t, src, out, nil)

	cfg := testConfig()
	cfg.execute = true
	stats, err := run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 1, stats.replayed)
	require.True(t, src.closed)
	require.True(t, out.closed)

	stubConnect(t, nil, nil, errors.New("dial tcp: connection refused"))
	_, err = run(context.Background(), cfg)
	require.ErrorContains(t, err, "connection refused")
}

func TestMain_DryRunWithStubbedConnect(t *testing.T) {
	src := newFakeSource()
	src.add(0, eventLetter(t, "c-1"))
	stubConnect(t, src, nil, nil)

	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	os.Args = []string{"dlq-reprocess", "-brokers=k:9092", "-limit=1", "-idle-timeout=50ms"}

	main()
	require.True(t, src.closed)
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_REPROCESS_FAIL") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestFailExits$")
	cmd.Env = append(os.Environ(), "DLQ_REPROCESS_FAIL=1")
	err := cmd.Run()

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 1, exitErr.ExitCode())
}

func testConfig() config {
	return config{
		brokers:     []string{"k:9092"},
		sourceTopic: kafka.TopicDeadLetterQueue,
		targetTopic: kafka.TopicLedgerEvents,
		kind:        kindAll,
		limit:       100,
		idleTimeout: time.Second,
	}
}

func newTestReplayer(cfg config, src dlqSource, out sender) *replayer {
	logger := log.New()
	logger.SetLevel(log.WarnLevel)

	return &replayer{
		cfg:    cfg,
		src:    src,
		out:    out,
		logger: logger.WithField("component", "dlq-reprocess"),
		now:    func() time.Time { return replayNow },
	}
}

func stubConnect(t *testing.T, src *fakeSource, out *recordingSender, err error) {
	t.Helper()

	old := connect
	t.Cleanup(func() { connect = old })
	connect = func(config, *log.Entry) (dlqSource, sender, error) {
		if err != nil {
			return nil, nil, err
		}
		if out == nil {
			return src, nil, nil
		}
		return src, out, nil
	}
}

type fakePartition struct {
	first, end int64
	records    []*sarama.ConsumerMessage
}

type fakeSource struct {
	parts     map[int32]*fakePartition
	startedAt map[int32]int64
	closed    bool

	partitionsErr error
	offsetErr     error
	consumeErr    error
	streamErr     error
}

func newFakeSource() *fakeSource {
	return &fakeSource{parts: make(map[int32]*fakePartition), startedAt: make(map[int32]int64)}
}

// add кладёт записи в раздел с offset от 0.
func (s *fakeSource) add(partition int32, values ...[]byte) {
	part := &fakePartition{end: int64(len(values))}
	for i, v := range values {
		part.records = append(part.records, &sarama.ConsumerMessage{
			Topic:     kafka.TopicDeadLetterQueue,
			Partition: partition,
			Offset:    int64(i),
			Value:     v,
		})
	}
	s.parts[partition] = part
}

func (s *fakeSource) Partitions(string) ([]int32, error) {
	if s.partitionsErr != nil {
		return nil, s.partitionsErr
	}
	ids := make([]int32, 0, len(s.parts))
	for id := range s.parts {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeSource) GetOffset(_ string, partition int32, at int64) (int64, error) {
	if s.offsetErr != nil {
		return 0, s.offsetErr
	}
	part := s.parts[partition]
	if at == sarama.OffsetOldest {
		return part.first, nil
	}
	return part.end, nil
}

func (s *fakeSource) ConsumePartition(_ string, partition int32, offset int64) (partitionStream, error) {
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	s.startedAt[partition] = offset

	part := s.parts[partition]
	stream := &fakeStream{messages: make(chan *sarama.ConsumerMessage, len(part.records))}
	for _, msg := range part.records {
		if msg.Offset >= offset {
			stream.messages <- msg
		}
	}
	if s.streamErr != nil {
		stream.errors = make(chan *sarama.ConsumerError, 1)
		stream.errors <- &sarama.ConsumerError{Topic: kafka.TopicDeadLetterQueue, Partition: partition, Err: s.streamErr}
	}
	return stream, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeStream struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (s *fakeStream) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *fakeStream) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *fakeStream) Close() error                             { return nil }

type recordingSender struct {
	sent   []kafka.Message
	err    error
	closed bool
}

func (s *recordingSender) Send(msg kafka.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) Close() error {
	s.closed = true
	return nil
}
