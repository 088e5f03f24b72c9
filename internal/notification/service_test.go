package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	gmaildto "github.com/kdrangari/msgtracker-api/internal/gmail/dto"
	"github.com/kdrangari/msgtracker-api/internal/gmail/usecase"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type recordingUsecase struct {
	usecase.GmailUsecase
	mu       sync.Mutex
	payloads []string
}

func (r *recordingUsecase) HandleNotificationData(ctx context.Context, data []byte) (*gmaildto.SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, string(data))
	return &gmaildto.SyncResult{EventsIngested: 1}, nil
}

func (r *recordingUsecase) received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.payloads...)
}

func TestSubscriptionName(t *testing.T) {
	assert.Equal(t, "gmail-sent-sub", SubscriptionName("gmail-sent"))
	assert.Equal(t, "gmail-sent-sub", SubscriptionName("projects/p/topics/gmail-sent"))
}

func TestStart_DeliversNotifications(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "gmail-sent")
	require.NoError(t, err)

	uc := &recordingUsecase{}
	svc := newService(client, "test-project", "projects/test-project/topics/gmail-sent", "", uc)

	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	// Publish until the subscription created by Start picks a message up.
	payload := `{"emailAddress":"me@example.com","historyId":1234}`
	require.Eventually(t, func() bool {
		topic.Publish(ctx, &pubsub.Message{Data: []byte(payload)}).Get(ctx)
		return len(uc.received()) > 0
	}, 5*time.Second, 100*time.Millisecond)

	assert.Equal(t, payload, uc.received()[0])

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestStart_MissingTopicReturns(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	svc := newService(client, "test-project", "missing", "", &recordingUsecase{})

	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start should give up when the topic does not exist")
	}
}
