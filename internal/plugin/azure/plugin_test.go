package azure

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/sweeper/internal/plugin"
	"github.com/yairfalse/sweeper/pkg/resource"
)

// mockGroups implements GroupsAPI for testing.
type mockGroups struct {
	ListFunc        func(ctx context.Context) ([]*armresources.ResourceGroup, error)
	BeginDeleteFunc func(ctx context.Context, name string) (DeletePoller, error)

	mu      sync.Mutex
	deleted []string
}

func (m *mockGroups) List(ctx context.Context) ([]*armresources.ResourceGroup, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

func (m *mockGroups) BeginDelete(ctx context.Context, name string) (DeletePoller, error) {
	m.mu.Lock()
	m.deleted = append(m.deleted, name)
	m.mu.Unlock()
	if m.BeginDeleteFunc != nil {
		return m.BeginDeleteFunc(ctx, name)
	}
	return &mockPoller{}, nil
}

// mockPoller implements DeletePoller for testing.
type mockPoller struct {
	err error
}

func (p *mockPoller) PollUntilDone(_ context.Context, _ *runtime.PollUntilDoneOptions) (armresources.ResourceGroupsClientDeleteResponse, error) {
	return armresources.ResourceGroupsClientDeleteResponse{}, p.err
}

func ptr(s string) *string { return &s }

func newTestGroup(name string, tags map[string]*string) *armresources.ResourceGroup {
	return &armresources.ResourceGroup{
		ID:       ptr("/subscriptions/sub-1/resourceGroups/" + name),
		Name:     ptr(name),
		Location: ptr("westeurope"),
		Tags:     tags,
	}
}

func TestListGroups(t *testing.T) {
	mock := &mockGroups{
		ListFunc: func(context.Context) ([]*armresources.ResourceGroup, error) {
			return []*armresources.ResourceGroup{
				newTestGroup("rg-a", map[string]*string{"ExpirationDate": ptr("2020-01-01"), "empty": nil}),
				newTestGroup("rg-b", nil),
				nil,
				{ID: ptr("/broken")},
			}, nil
		},
	}

	c := newClient(Config{SubscriptionID: "sub-1"}, mock)
	groups, err := c.ListGroups(context.Background(), nil)

	require.NoError(t, err)
	require.Len(t, groups, 2)

	a := groups[0]
	assert.Equal(t, "rg-a", a.Name)
	assert.Equal(t, "/subscriptions/sub-1/resourceGroups/rg-a", a.Key)
	assert.Equal(t, "westeurope", a.Location)
	assert.Equal(t, "2020-01-01", a.Tags["ExpirationDate"])
	v, ok := a.Tag("empty")
	assert.True(t, ok)
	assert.Empty(t, v)

	assert.NotNil(t, groups[1].Tags)
}

func TestListGroups_Predicate(t *testing.T) {
	mock := &mockGroups{
		ListFunc: func(context.Context) ([]*armresources.ResourceGroup, error) {
			return []*armresources.ResourceGroup{
				newTestGroup("rg-a", map[string]*string{"keep": ptr("1")}),
				newTestGroup("rg-b", nil),
			}, nil
		},
	}

	c := newClient(Config{}, mock)
	groups, err := c.ListGroups(context.Background(), func(g resource.ResourceGroup) bool {
		_, ok := g.Tag("keep")
		return ok
	})

	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "rg-a", groups[0].Name)
}

func TestListGroups_Error(t *testing.T) {
	mock := &mockGroups{
		ListFunc: func(context.Context) ([]*armresources.ResourceGroup, error) {
			return nil, &azcore.ResponseError{StatusCode: http.StatusUnauthorized, ErrorCode: "InvalidAuthenticationToken"}
		},
	}

	c := newClient(Config{}, mock)
	_, err := c.ListGroups(context.Background(), nil)
	assert.ErrorIs(t, err, plugin.ErrDirectoryUnavailable)
}

func TestDeleteGroup(t *testing.T) {
	mock := &mockGroups{}
	c := newClient(Config{}, mock)

	d, err := c.DeleteGroup(context.Background(), "rg-a")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "rg-a", d.Name)
	assert.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, []string{"rg-a"}, mock.deleted)
}

func TestDeleteGroup_DispatchRejected(t *testing.T) {
	mock := &mockGroups{
		BeginDeleteFunc: func(context.Context, string) (DeletePoller, error) {
			return nil, &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "ResourceGroupNotFound"}
		},
	}
	c := newClient(Config{}, mock)

	d, err := c.DeleteGroup(context.Background(), "rg-gone")
	assert.Nil(t, d)
	assert.ErrorIs(t, err, plugin.ErrDeleteFailed)
	assert.Contains(t, err.Error(), "ResourceGroupNotFound")
}

func TestDeleteGroup_EmptyName(t *testing.T) {
	mock := &mockGroups{}
	c := newClient(Config{}, mock)

	_, err := c.DeleteGroup(context.Background(), "  ")
	assert.ErrorIs(t, err, plugin.ErrDeleteFailed)
	assert.Empty(t, mock.deleted)
}

func TestDeleteGroup_CompletionFailure(t *testing.T) {
	mock := &mockGroups{
		BeginDeleteFunc: func(context.Context, string) (DeletePoller, error) {
			return &mockPoller{err: errors.New("conflict")}, nil
		},
	}
	c := newClient(Config{}, mock)

	d, err := c.DeleteGroup(context.Background(), "rg-a")
	require.NoError(t, err)
	assert.ErrorIs(t, d.Wait(context.Background()), plugin.ErrDeleteFailed)
}

func TestNewClient_DefaultPollFrequency(t *testing.T) {
	c := newClient(Config{}, &mockGroups{})
	assert.Equal(t, defaultPollFrequency, c.pollFrequency)
	assert.Equal(t, "azure", c.Name())
}
