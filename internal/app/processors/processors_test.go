package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentiva/rentiva/internal/app/config"
	"github.com/rentiva/rentiva/internal/app/services"
	"github.com/rentiva/rentiva/internal/domain/coordination"
	"github.com/rentiva/rentiva/internal/infrastructure/redis/redistest"
	"github.com/rentiva/rentiva/pkg/logger"
)

func newInfrastructure(t *testing.T) *services.Infrastructure {
	mgr, _ := redistest.NewManager(t)
	cfg := &config.Config{
		Environment: "test",
		Cache:       config.CacheConfig{DefaultTTL: time.Hour},
		Session:     config.SessionConfig{DefaultTTL: time.Hour, ActivityMax: 100},
		Queue: config.QueueConfig{
			DefaultAttempts: 3,
			DefaultBackoff:  10 * time.Millisecond,
			KeepCompleted:   100,
			KeepFailed:      50,
		},
	}
	infra := services.NewWithManager(cfg, mgr, logger.NewForTesting())
	t.Cleanup(func() {
		infra.PubSub.Close()
	})
	return infra
}

// settle gives the subscriber connection time to register before publishing.
func settle() { time.Sleep(100 * time.Millisecond) }

func drainOne(t *testing.T, infra *services.Infrastructure, p Processor, queue string) *coordination.Job {
	t.Helper()
	ctx := context.Background()
	job, err := infra.Queues.Next(ctx, queue)
	require.NoError(t, err)
	require.NotNil(t, job)
	if err := p.Process(ctx, job); err != nil {
		require.NoError(t, infra.Queues.Fail(ctx, job, err))
		t.Fatalf("processing %s failed: %v", job.Name, err)
	}
	require.NoError(t, infra.Queues.Complete(ctx, job))
	return job
}

func TestWelcomeUserWarmsCacheBeforeNotifying(t *testing.T) {
	infra := newInfrastructure(t)
	ctx := context.Background()
	log := logger.NewForTesting()

	// The handler checks the cache at delivery time: the warm entry must
	// already be visible when the welcome notification arrives.
	type delivery struct {
		cacheWarm bool
		msg       coordination.PubSubMessage
	}
	received := make(chan delivery, 1)
	_, err := infra.PubSub.Subscribe(
		fmt.Sprintf(coordination.UserNotificationChannelPattern, "u1"),
		func(msg coordination.PubSubMessage) {
			var user map[string]interface{}
			received <- delivery{
				cacheWarm: infra.Cache.GetCachedUser(context.Background(), "u1", &user),
				msg:       msg,
			}
		})
	require.NoError(t, err)
	settle()

	_, err = infra.Queues.AddWelcomeUserJob(ctx, coordination.WelcomeUserPayload{
		UserID: "u1", Email: "ana@example.com", FirstName: "Ana",
	})
	require.NoError(t, err)

	processor := NewUserProcessor(infra.Cache, infra.PubSub, log)
	job := drainOne(t, infra, processor, coordination.QueueUser)
	assert.Equal(t, coordination.JobWelcomeUser, job.Name)

	select {
	case got := <-received:
		assert.True(t, got.cacheWarm)
		var notification map[string]interface{}
		require.NoError(t, json.Unmarshal(got.msg.Payload, &notification))
		assert.Equal(t, "welcome", notification["type"])
		assert.Contains(t, notification["message"], "ana@example.com")
	case <-time.After(2 * time.Second):
		t.Fatal("welcome notification never arrived")
	}

	var user map[string]interface{}
	require.True(t, infra.Cache.GetCachedUser(ctx, "u1", &user))
	assert.Equal(t, "ana@example.com", user["email"])
}

func TestUpdateProfileInvalidatesUserCaches(t *testing.T) {
	infra := newInfrastructure(t)
	ctx := context.Background()

	require.NoError(t, infra.Cache.CacheUser(ctx, "u2", map[string]string{"email": "old@example.com"}))
	require.NoError(t, infra.Cache.CacheFavorites(ctx, "u2", "{}", []string{"p1"}))

	_, err := infra.Queues.AddUpdateProfileJob(ctx, coordination.UpdateProfilePayload{
		UserID: "u2", Fields: map[string]string{"email": "new@example.com"},
	})
	require.NoError(t, err)

	processor := NewUserProcessor(infra.Cache, infra.PubSub, logger.NewForTesting())
	drainOne(t, infra, processor, coordination.QueueUser)

	var out interface{}
	assert.False(t, infra.Cache.GetCachedUser(ctx, "u2", &out))
	assert.False(t, infra.Cache.GetCachedFavorites(ctx, "u2", "{}", &out))
}

func TestIndexPropertyRefreshesCacheAndAnnounces(t *testing.T) {
	infra := newInfrastructure(t)
	ctx := context.Background()

	// Stale listing page that must be dropped by the reindex.
	require.NoError(t, infra.Cache.CachePropertyList(ctx, `{"city":"lisbon"}`, []string{"old"}))

	events := make(chan coordination.PubSubMessage, 1)
	_, err := infra.PubSub.Subscribe(
		fmt.Sprintf(coordination.PropertyChannelPattern, "p1"),
		func(msg coordination.PubSubMessage) { events <- msg })
	require.NoError(t, err)
	settle()

	_, err = infra.Queues.AddIndexPropertyJob(ctx, coordination.IndexPropertyPayload{
		PropertyID: "p1", OwnerID: "u1",
	})
	require.NoError(t, err)

	processor := NewPropertyProcessor(infra.Cache, infra.PubSub, logger.NewForTesting())
	drainOne(t, infra, processor, coordination.QueueProperty)

	var list interface{}
	assert.False(t, infra.Cache.GetCachedPropertyList(ctx, `{"city":"lisbon"}`, &list))

	var property map[string]interface{}
	require.True(t, infra.Cache.GetCachedProperty(ctx, "p1", &property))
	assert.Equal(t, "p1", property["id"])

	select {
	case msg := <-events:
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, "indexed", event["type"])
	case <-time.After(2 * time.Second):
		t.Fatal("property event never arrived")
	}
}

func TestProcessImagesMergesIntoCachedRecord(t *testing.T) {
	infra := newInfrastructure(t)
	ctx := context.Background()

	require.NoError(t, infra.Cache.CacheProperty(ctx, "p2", map[string]interface{}{
		"id": "p2", "title": "Seaside flat",
	}))

	_, err := infra.Queues.AddProcessImagesJob(ctx, coordination.ProcessImagesPayload{
		PropertyID: "p2", ImageURLs: []string{"a.jpg", "b.jpg"},
	})
	require.NoError(t, err)

	processor := NewPropertyProcessor(infra.Cache, infra.PubSub, logger.NewForTesting())
	drainOne(t, infra, processor, coordination.QueueProperty)

	var property map[string]interface{}
	require.True(t, infra.Cache.GetCachedProperty(ctx, "p2", &property))
	assert.Equal(t, "Seaside flat", property["title"])
	assert.Len(t, property["images"], 2)
}

func TestSendEmailFansOutToMailerChannel(t *testing.T) {
	infra := newInfrastructure(t)
	ctx := context.Background()

	mail := make(chan coordination.PubSubMessage, 1)
	_, err := infra.PubSub.Subscribe(
		fmt.Sprintf(coordination.EmailChannelPattern, "ana@example.com"),
		func(msg coordination.PubSubMessage) { mail <- msg })
	require.NoError(t, err)
	settle()

	_, err = infra.Queues.AddSendEmailJob(ctx, coordination.SendEmailPayload{
		To: "ana@example.com", Template: "booking_confirmed",
	})
	require.NoError(t, err)

	processor := NewNotificationProcessor(infra.PubSub, logger.NewForTesting())
	drainOne(t, infra, processor, coordination.QueueEmail)

	select {
	case msg := <-mail:
		var payload coordination.SendEmailPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.Equal(t, "booking_confirmed", payload.Template)
		assert.Equal(t, "notification-service", msg.Publisher)
	case <-time.After(2 * time.Second):
		t.Fatal("email dispatch never arrived")
	}
}

func TestEphemeralMessageIsDeliveredNotStored(t *testing.T) {
	infra := newInfrastructure(t)
	ctx := context.Background()

	chat := make(chan coordination.PubSubMessage, 1)
	_, err := infra.PubSub.Subscribe(
		fmt.Sprintf(coordination.ChatChannelPattern, "room-7"),
		func(msg coordination.PubSubMessage) { chat <- msg })
	require.NoError(t, err)
	settle()

	_, err = infra.Queues.AddEphemeralMessageJob(ctx, coordination.EphemeralMessagePayload{
		Room: "room-7", SenderID: "u1", Body: "is the flat still available?",
	})
	require.NoError(t, err)

	processor := NewMessageProcessor(infra.PubSub, logger.NewForTesting())
	drainOne(t, infra, processor, coordination.QueueMessage)

	select {
	case msg := <-chat:
		var message map[string]interface{}
		require.NoError(t, json.Unmarshal(msg.Payload, &message))
		assert.Equal(t, "is the flat still available?", message["body"])
		assert.Equal(t, true, message["ephemeral"])
	case <-time.After(2 * time.Second):
		t.Fatal("chat message never arrived")
	}
}

func TestUnknownJobNameIsRejected(t *testing.T) {
	infra := newInfrastructure(t)
	ctx := context.Background()

	_, err := infra.Queues.Add(ctx, coordination.QueueUser, "mystery-job", map[string]string{}, nil)
	require.NoError(t, err)

	job, err := infra.Queues.Next(ctx, coordination.QueueUser)
	require.NoError(t, err)
	require.NotNil(t, job)

	processor := NewUserProcessor(infra.Cache, infra.PubSub, logger.NewForTesting())
	err = processor.Process(ctx, job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery-job")
}
