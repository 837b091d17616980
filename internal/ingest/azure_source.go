package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
)

// AzureSource reads landing categories from blob prefixes in one container.
type AzureSource struct {
	client    *azblob.Client
	container string
	prefixes  map[constants.Category]string
	logger    *slog.Logger
}

func NewAzureSource(connectionString, container string, prefixes map[constants.Category]string, logger *slog.Logger) (*AzureSource, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AzureSource{
		client:    client,
		container: container,
		prefixes:  prefixes,
		logger:    logger.With("source", "azure"),
	}, nil
}

// EnsureContainer creates the container if it does not exist yet.
func (a *AzureSource) EnsureContainer(ctx context.Context) error {
	_, err := a.client.CreateContainer(ctx, a.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("create container %s: %w", a.container, err)
	}
	a.logger.Info("ingest.azure.container_ready", "container", a.container)
	return nil
}

func (a *AzureSource) Location(c constants.Category) string {
	return "azblob://" + a.container + "/" + strings.Trim(a.prefixes[c], "/")
}

func (a *AzureSource) List(ctx context.Context, c constants.Category) ([]FileRef, error) {
	prefix := strings.Trim(a.prefixes[c], "/")
	if prefix != "" {
		prefix += "/"
	}
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})

	var refs []FileRef
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list %s: %v", common.ErrUnavailable, a.Location(c), err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			rest := strings.TrimPrefix(*item.Name, prefix)
			if strings.Contains(rest, "/") || !keep(c, rest) {
				continue
			}
			ref := FileRef{Category: c, Name: rest, Location: *item.Name}
			if p := item.Properties; p != nil {
				if p.ContentLength != nil {
					ref.Size = *p.ContentLength
				}
				if p.LastModified != nil {
					ref.ModTime = p.LastModified.UTC()
				}
			}
			refs = append(refs, ref)
		}
	}
	sortRefs(refs)
	return refs, nil
}

func (a *AzureSource) Open(ctx context.Context, ref FileRef) (io.ReadCloser, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, ref.Location, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("%w: blob %s", common.ErrNotFound, ref.Location)
		}
		return nil, fmt.Errorf("download blob %s: %w", ref.Location, err)
	}
	return resp.Body, nil
}

func (a *AzureSource) Put(ctx context.Context, c constants.Category, name string, r io.Reader) (FileRef, error) {
	key := objectKey(a.prefixes[c], name)
	if _, err := a.client.UploadStream(ctx, a.container, key, r, nil); err != nil {
		return FileRef{}, fmt.Errorf("upload blob %s: %w", key, err)
	}
	return FileRef{Category: c, Name: name, Location: key}, nil
}
