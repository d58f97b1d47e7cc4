package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"

	"github.com/version-vault/internal/config"
)

// errBlobNotFound is returned by objectReader implementations for missing blobs
var errBlobNotFound = errors.New("blob not found")

// objectReader is the subset of blob operations the snapshot provider needs
type objectReader interface {
	Download(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Client wraps the Azure Blob SDK client for the remote snapshot container
type Client struct {
	serviceClient   *service.Client
	containerClient *container.Client
	cfg             config.AzureConfig
}

// NewClient creates a new Azure Blob client for the configured container
func NewClient(cfg config.AzureConfig) (*Client, error) {
	var serviceClient *service.Client
	var cred azcore.TokenCredential
	var err error

	serviceURL := cfg.GetServiceURL()

	switch cfg.GetAuthMethod() {
	case "connection_string":
		serviceClient, err = service.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client from connection string: %w", err)
		}

	case "sas_token":
		sasURL := serviceURL
		if !strings.HasPrefix(cfg.SASToken, "?") {
			sasURL += "?"
		}
		sasURL += cfg.SASToken
		serviceClient, err = service.NewClientWithNoCredential(sasURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client with SAS token: %w", err)
		}

	case "managed_identity":
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create default azure credential: %w", err)
		}
		serviceClient, err = service.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client with managed identity: %w", err)
		}

	case "service_principal":
		cred, err = azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create service principal credential: %w", err)
		}
		serviceClient, err = service.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client with service principal: %w", err)
		}

	default:
		return nil, fmt.Errorf("no valid authentication method configured")
	}

	return &Client{
		serviceClient:   serviceClient,
		containerClient: serviceClient.NewContainerClient(cfg.Container),
		cfg:             cfg,
	}, nil
}

// List returns the names of all blobs below prefix
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string

	pager := c.containerClient.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}

		for _, blob := range resp.Segment.BlobItems {
			if blob.Name != nil {
				names = append(names, *blob.Name)
			}
		}
	}

	return names, nil
}

// Download returns the content of a blob
func (c *Client) Download(ctx context.Context, name string) ([]byte, error) {
	resp, err := c.containerClient.NewBlobClient(name).DownloadStream(ctx, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return nil, fmt.Errorf("%s: %w", name, errBlobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob content: %w", err)
	}

	return content, nil
}
