package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kdrangari/msgtracker-api/internal/gmail/usecase"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Service pulls Gmail change notifications from a Pub/Sub subscription and
// hands them to the sync driver. It is the pull-mode alternative to the push
// webhook.
type Service struct {
	pubsubClient *pubsub.Client
	gmailUsecase usecase.GmailUsecase
	projectID    string
	topicName    string
	subName      string
}

func NewService(projectID, topicName, subName string, gmailUsecase usecase.GmailUsecase, credentialsFile string) (*Service, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %v", err)
	}

	return newService(client, projectID, topicName, subName, gmailUsecase), nil
}

func newService(client *pubsub.Client, projectID, topicName, subName string, gmailUsecase usecase.GmailUsecase) *Service {
	if subName == "" {
		subName = SubscriptionName(topicName)
	}
	return &Service{
		pubsubClient: client,
		gmailUsecase: gmailUsecase,
		projectID:    projectID,
		topicName:    topicName,
		subName:      subName,
	}
}

// SubscriptionName derives the default subscription id from a topic id or a
// full projects/<p>/topics/<t> path.
func SubscriptionName(topicName string) string {
	return shortName(topicName) + "-sub"
}

func shortName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			return name[i+1:]
		}
	}
	return name
}

// Start blocks until ctx is cancelled or the subscription cannot be used.
func (s *Service) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting notification service with topic: %s, subscription: %s", s.topicName, s.subName)

	sub, err := s.ensureSubscription(ctx)
	if err != nil {
		log.Printf("[PubSub] %v", err)
		return
	}

	log.Printf("[PubSub] Listening for messages on subscription: %s", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg.ID, msg.Data)
		// The sync driver absorbs its own failures, so redelivery would not help.
		msg.Ack()
	})
	if err != nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
}

func (s *Service) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	sub := s.pubsubClient.Subscription(shortName(s.subName))
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("error checking subscription existence: %w", err)
	}
	if exists {
		return sub, nil
	}

	topic := s.pubsubClient.Topic(shortName(s.topicName))
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("error checking topic existence: %w", err)
	}
	if !topicExists {
		return nil, fmt.Errorf("topic %s does not exist, cannot create subscription", s.topicName)
	}

	sub, err = s.pubsubClient.CreateSubscription(ctx, shortName(s.subName), pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 60 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	log.Printf("[PubSub] Created subscription: %s", s.subName)
	return sub, nil
}

func (s *Service) handleMessage(ctx context.Context, id string, data []byte) {
	result, err := s.gmailUsecase.HandleNotificationData(ctx, data)
	if err != nil {
		log.Printf("[PubSub] Notification %s failed: %v", id, err)
		return
	}
	if result != nil && result.EventsIngested > 0 {
		log.Printf("[PubSub] Notification %s ingested %d events", id, result.EventsIngested)
	}
}

func (s *Service) Close() error {
	return s.pubsubClient.Close()
}
