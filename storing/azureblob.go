package storing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureBlobStore is a durable Store backend over an Azure Blob Storage
// container, for deployments that need the KEL/receipt/reply state to
// survive process restarts without standing up a database. It is optional:
// MemStore is sufficient for the common case of an embedder holding all
// state in memory for the process lifetime, mirroring the teacher's split
// between an in-memory massif context and its blob-backed committer.
//
// Each SubDB is a flat namespace of blobs named "<subName>/<hex(key)>"
// within the one container; blob listing (which Azure returns in
// lexicographic name order) stands in for the ordered range scans MemStore
// gets from google/btree.
type AzureBlobStore struct {
	client *azblob.Client
	cont   string
}

// NewAzureBlobStore wraps an already-constructed azblob.Client bound to a
// storage account, targeting containerName for every sub-db.
func NewAzureBlobStore(client *azblob.Client, containerName string) *AzureBlobStore {
	return &AzureBlobStore{client: client, cont: containerName}
}

// EnsureContainer creates the backing container if it does not already
// exist. Safe to call repeatedly.
func (a *AzureBlobStore) EnsureContainer(ctx context.Context) error {
	_, err := a.client.CreateContainer(ctx, a.cont, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (a *AzureBlobStore) SubDB(name string) SubDB {
	return &azureSubDB{store: a, name: name}
}

type azureSubDB struct {
	store *AzureBlobStore
	name  string
}

func (s *azureSubDB) blobName(key []byte) string {
	return s.name + "/" + hexEncode(key)
}

func (s *azureSubDB) Put(ctx context.Context, key, value []byte) error {
	_, err := s.store.client.UploadBuffer(ctx, s.store.cont, s.blobName(key), value, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (s *azureSubDB) PutFirst(ctx context.Context, key, value []byte) (bool, error) {
	if _, ok, err := s.Get(ctx, key); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}
	if err := s.Put(ctx, key, value); err != nil {
		return false, err
	}
	return true, nil
}

func (s *azureSubDB) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	resp, err := s.store.client.DownloadStream(ctx, s.store.cont, s.blobName(key), nil)
	if err != nil {
		if isBlobNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return data, true, nil
}

func (s *azureSubDB) Delete(ctx context.Context, key []byte) error {
	_, err := s.store.client.DeleteBlob(ctx, s.store.cont, s.blobName(key), nil)
	if err != nil && !isBlobNotFound(err) {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (s *azureSubDB) GetLastByPrefix(ctx context.Context, prefix []byte) ([]byte, []byte, bool, error) {
	keys, err := s.listKeys(ctx, prefix)
	if err != nil {
		return nil, nil, false, err
	}
	if len(keys) == 0 {
		return nil, nil, false, nil
	}
	last := keys[len(keys)-1]
	value, ok, err := s.Get(ctx, last)
	if err != nil || !ok {
		return nil, nil, false, err
	}
	return last, value, true, nil
}

func (s *azureSubDB) Range(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	keys, err := s.listKeys(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		value, ok, err := s.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if !fn(key, value) {
			break
		}
	}
	return nil
}

func (s *azureSubDB) listKeys(ctx context.Context, prefix []byte) ([][]byte, error) {
	blobPrefix := s.name + "/" + hexEncode(prefix)
	var keys [][]byte
	pager := s.store.client.NewListBlobsFlatPager(s.store.cont, &azblob.ListBlobsFlatOptions{
		Prefix: &blobPrefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			rest := strings.TrimPrefix(*item.Name, s.name+"/")
			key, err := hexDecode(rest)
			if err != nil {
				continue
			}
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return keys, nil
}

func isBlobNotFound(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound)
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}

func hexDecode(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("storing: odd-length hex blob name %q", s)
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, err := hexNibble(s[i*2])
		if err != nil {
			return nil, err
		}
		lo, err := hexNibble(s[i*2+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	default:
		return 0, fmt.Errorf("storing: bad hex digit %q", c)
	}
}
