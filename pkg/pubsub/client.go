package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopic           = errors.New("pubsub settlement topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client owns the Pub/Sub connection and the single publisher for the
// settlement topic.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	once       sync.Once
	settlement *pubsub.Publisher
}

// NewClient connects to Pub/Sub and fails fast when the settlement topic is
// missing; topics are provisioned outside the service.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	if strings.TrimSpace(cfg.SettlementTopic) == "" {
		return nil, errNoTopic
	}

	raw, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: raw, projectID: projectID, cfg: cfg}
	if err := c.topicExists(ctx, cfg.SettlementTopic); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":    cfg.SettlementTopic,
			"ordering": cfg.OrderingEnabled,
		}), "pubsub client initialized")
	}
	return c, nil
}

func (c *Client) topicExists(ctx context.Context, name string) error {
	topic := TopicResourceName(c.projectID, name)
	if topic == "" {
		return errNoTopic
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %q does not exist", topic)
	default:
		return fmt.Errorf("checking topic %q: %w", topic, err)
	}
}

// SettlementPublisher returns the shared publisher for settlement events,
// with message ordering per config.
func (c *Client) SettlementPublisher() *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	c.once.Do(func() {
		topic := TopicResourceName(c.projectID, c.cfg.SettlementTopic)
		if topic == "" {
			return
		}
		c.settlement = c.client.Publisher(topic)
		c.settlement.EnableMessageOrdering = c.cfg.OrderingEnabled
	})
	return c.settlement
}

// Ping checks the settlement topic is still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.topicExists(ctx, c.cfg.SettlementTopic)
}

// Close flushes pending publishes before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.settlement != nil {
		c.settlement.Stop()
	}
	return c.client.Close()
}

// TopicResourceName expands a bare topic ID into its projects/.../topics/...
// form. Fully qualified names pass through unchanged.
func TopicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return "projects/" + p + "/topics/" + n
}
