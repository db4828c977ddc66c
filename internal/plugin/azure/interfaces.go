package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
)

// GroupsAPI defines the resource group operations used by the directory.
type GroupsAPI interface {
	// List returns every resource group in the subscription, all pages.
	List(ctx context.Context) ([]*armresources.ResourceGroup, error)

	// BeginDelete sends the delete request and returns a poller for its completion.
	BeginDelete(ctx context.Context, name string) (DeletePoller, error)
}

// DeletePoller is satisfied by *runtime.Poller[armresources.ResourceGroupsClientDeleteResponse].
type DeletePoller interface {
	PollUntilDone(ctx context.Context, options *runtime.PollUntilDoneOptions) (armresources.ResourceGroupsClientDeleteResponse, error)
}

// armGroups adapts the ARM SDK client to GroupsAPI.
type armGroups struct {
	client *armresources.ResourceGroupsClient
}

func (a armGroups) List(ctx context.Context) ([]*armresources.ResourceGroup, error) {
	var groups []*armresources.ResourceGroup

	pager := a.client.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list resource groups: %w", err)
		}
		groups = append(groups, page.Value...)
	}

	return groups, nil
}

func (a armGroups) BeginDelete(ctx context.Context, name string) (DeletePoller, error) {
	poller, err := a.client.BeginDelete(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	return poller, nil
}
