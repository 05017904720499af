package queue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"DeadOrNot/internal/model"
	"DeadOrNot/internal/service"
	"DeadOrNot/storage/redis"
)

func setupRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redis.SetClient(client)
	return mr
}

type publishedMessage struct {
	msg   model.ReminderMessage
	delay time.Duration
}

type fakePublisher struct {
	err  error
	sent []publishedMessage
	mu   sync.Mutex
}

func (p *fakePublisher) PublishDelayed(ctx context.Context, delay time.Duration, msg model.ReminderMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, publishedMessage{msg: msg, delay: delay})
	return nil
}

func (p *fakePublisher) last() publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent[len(p.sent)-1]
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type fakeDeliverer struct {
	err     error
	notices chan service.ReminderNotice
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{notices: make(chan service.ReminderNotice, 8)}
}

func (d *fakeDeliverer) Deliver(ctx context.Context, notice service.ReminderNotice) error {
	d.notices <- notice
	return d.err
}

func sequentialIDs() func() (string, error) {
	var n int
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return strconv.Itoa(n), nil
	}
}

var errPublish = errors.New("channel closed")
