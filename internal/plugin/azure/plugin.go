// Package azure implements the resource directory against Azure Resource Manager.
package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/sweeper/internal/plugin"
	"github.com/yairfalse/sweeper/pkg/resource"
)

const defaultPollFrequency = 30 * time.Second

// Config holds the service principal and subscription to operate on.
type Config struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string
	PollFrequency  time.Duration
}

// Client is the Azure resource group directory.
type Client struct {
	subscriptionID string
	pollFrequency  time.Duration
	groups         GroupsAPI
}

// New authenticates with a client secret credential and creates a Client.
func New(cfg Config) (*Client, error) {
	cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure credential: %w", err)
	}

	rg, err := armresources.NewResourceGroupsClient(cfg.SubscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create resource groups client: %w", err)
	}

	return newClient(cfg, armGroups{client: rg}), nil
}

func newClient(cfg Config, groups GroupsAPI) *Client {
	freq := cfg.PollFrequency
	if freq <= 0 {
		freq = defaultPollFrequency
	}
	return &Client{
		subscriptionID: cfg.SubscriptionID,
		pollFrequency:  freq,
		groups:         groups,
	}
}

// Name returns the directory identifier.
func (c *Client) Name() string {
	return "azure"
}

// ListGroups lists all resource groups once and returns those matching pred.
func (c *Client) ListGroups(ctx context.Context, pred plugin.Predicate) ([]resource.ResourceGroup, error) {
	raw, err := c.groups.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", plugin.ErrDirectoryUnavailable, err)
	}

	groups := make([]resource.ResourceGroup, 0, len(raw))
	for _, g := range raw {
		if g == nil || g.Name == nil {
			continue
		}
		groups = append(groups, toResourceGroup(g))
	}

	log.Debug().
		Str("subscription", c.subscriptionID).
		Int("count", len(groups)).
		Msg("listed resource groups")

	return plugin.Filter(groups, pred), nil
}

// DeleteGroup sends the delete request and polls for completion in the background.
func (c *Client) DeleteGroup(ctx context.Context, name string) (*plugin.Deletion, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty resource group name", plugin.ErrDeleteFailed)
	}

	poller, err := c.groups.BeginDelete(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", plugin.ErrDeleteFailed, name, describe(err))
	}

	opts := &runtime.PollUntilDoneOptions{Frequency: c.pollFrequency}
	return plugin.StartDeletion(ctx, name, func(bg context.Context) error {
		if _, err := poller.PollUntilDone(bg, opts); err != nil {
			return fmt.Errorf("%w: %s: %s", plugin.ErrDeleteFailed, name, describe(err))
		}
		return nil
	}), nil
}

func toResourceGroup(g *armresources.ResourceGroup) resource.ResourceGroup {
	tags := make(map[string]string, len(g.Tags))
	for k, v := range g.Tags {
		if v != nil {
			tags[k] = *v
		} else {
			tags[k] = ""
		}
	}

	return resource.ResourceGroup{
		Name:     deref(g.Name),
		Key:      deref(g.ID),
		Location: deref(g.Location),
		Tags:     tags,
	}
}

// describe flattens ARM response errors to "status code: error code".
func describe(err error) string {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		if respErr.StatusCode == http.StatusNotFound {
			return fmt.Sprintf("not found (%s)", respErr.ErrorCode)
		}
		return fmt.Sprintf("%d %s", respErr.StatusCode, respErr.ErrorCode)
	}
	return err.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
