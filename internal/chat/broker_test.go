package chat

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ = Describe("RedisBroker", func() {
	var client *redis.Client

	BeforeEach(func() {
		addr := os.Getenv("REDIS_ADDR")
		if addr == "" {
			Skip("REDIS_ADDR not set")
		}
		client = redis.NewClient(&redis.Options{Addr: addr})
	})

	AfterEach(func() {
		if client != nil {
			_ = client.Close()
		}
	})

	Specify("a subscriber that stops reading is released by its context", func() {
		b := NewRedisBroker(client, zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		_, err := b.Subscribe(ctx)
		Expect(err).To(BeNil())

		// more than the subscription buffer holds
		for i := 0; i < 100; i++ {
			Expect(b.Publish(context.Background(), Event{Name: "ping", Data: []byte(`{}`)})).To(Succeed())
		}
		time.Sleep(200 * time.Millisecond)
		cancel()

		Eventually(func() int64 {
			subs, err := client.PubSubNumSub(context.Background(), eventsChannel).Result()
			Expect(err).To(BeNil())
			return subs[eventsChannel]
		}, time.Second).Should(BeZero())
	})
})
