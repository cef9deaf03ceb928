package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []Event
	got    chan struct{}
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{got: make(chan struct{}, 16)}
}

func (b *recordingBroadcaster) Broadcast(topic string, e Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
	b.got <- struct{}{}
}

func testEvent(t *testing.T, eventType string) Event {
	t.Helper()
	e, err := New(eventType, uuid.New(), civil.Date{Year: 2024, Month: 1, Day: 2}, "tok-1",
		map[string]int{"queue_number": 3})
	require.NoError(t, err)
	return e
}

func TestNew_SetsTopic(t *testing.T) {
	doctorID := uuid.New()
	date := civil.Date{Year: 2024, Month: 3, Day: 9}
	e, err := New(TypeTokenIssued, doctorID, date, "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "queue/"+doctorID.String()+"/2024-03-09", e.Topic)
	assert.Equal(t, "2024-03-09", e.Date)
}

func TestRedisPublisher_RelayDeliversToBroadcaster(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dst := newRecordingBroadcaster()
	relay, err := NewRelay(ctx, client, "test-events", dst, zerolog.Nop())
	require.NoError(t, err)
	defer relay.Close()
	go relay.Run(ctx)

	sent := testEvent(t, TypeTokenIssued)
	require.NoError(t, NewRedisPublisher(client, "test-events").Publish(ctx, sent))

	select {
	case <-dst.got:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not deliver event")
	}
	dst.mu.Lock()
	defer dst.mu.Unlock()
	require.Len(t, dst.events, 1)
	assert.Equal(t, sent.Topic, dst.events[0].Topic)
	assert.JSONEq(t, string(sent.Data), string(dst.events[0].Data))
}

func TestRedisPublisher_Error(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	err := NewRedisPublisher(client, "").Publish(context.Background(), testEvent(t, TypeTokenIssued))
	assert.Error(t, err)
}

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	return &sqs.SendMessageOutput{}, f.err
}

func TestSQSPublisher_FiltersAndSends(t *testing.T) {
	client := &fakeSQS{}
	p := NewSQSPublisher(client, "https://sqs.local/queue")

	require.NoError(t, p.Publish(context.Background(), testEvent(t, TypeAvailabilityUpdated)))
	assert.Empty(t, client.inputs)

	e := testEvent(t, TypeTokenTransitioned)
	require.NoError(t, p.Publish(context.Background(), e))
	require.Len(t, client.inputs, 1)

	in := client.inputs[0]
	assert.Equal(t, "https://sqs.local/queue", *in.QueueUrl)
	assert.Equal(t, TypeTokenTransitioned, *in.MessageAttributes["event_type"].StringValue)

	var body Event
	require.NoError(t, json.Unmarshal([]byte(*in.MessageBody), &body))
	assert.Equal(t, e.Topic, body.Topic)
}

type funcPublisher func(ctx context.Context, e Event) error

func (f funcPublisher) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

func TestFanout_PublishesToAllAndJoinsErrors(t *testing.T) {
	var calls int
	boom := errors.New("boom")
	f := Fanout{
		funcPublisher(func(context.Context, Event) error { calls++; return nil }),
		funcPublisher(func(context.Context, Event) error { calls++; return boom }),
		Nop{},
	}
	err := f.Publish(context.Background(), testEvent(t, TypeTokenIssued))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}
