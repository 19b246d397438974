package photostore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubAWSConfig(t *testing.T) {
	t.Helper()
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		require.Equal(t, "us-east-1", lo.Region)
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		var opts s3.Options
		for _, fn := range optFns {
			fn(&opts)
		}
		require.NotNil(t, opts.BaseEndpoint)
		require.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
		return &s3.Client{}
	}
}

func testStore() *Store {
	return New(Config{
		Region:       "us-east-1",
		Bucket:       "planner-photos",
		BaseEndpoint: "http://127.0.0.1:9000",
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
	}, nil)
}

func TestUpload_PutsSniffedContent(t *testing.T) {
	stubAWSConfig(t)

	origRead := readFile
	origPut := putObject
	t.Cleanup(func() {
		readFile = origRead
		putObject = origPut
	})

	// PNG magic bytes so the sniffer has something to recognize.
	readFile = func(path string) ([]byte, error) {
		require.Equal(t, "/tmp/me.png", path)
		return []byte("\x89PNG\r\n\x1a\npayload"), nil
	}

	var gotKey, gotBucket, gotContentType string
	var gotBody []byte
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		gotKey = *in.Key
		gotBucket = *in.Bucket
		gotContentType = *in.ContentType
		var err error
		gotBody, err = io.ReadAll(in.Body)
		require.NoError(t, err)
		return &s3.PutObjectOutput{}, nil
	}

	key, err := testStore().Upload(context.Background(), "u1", "/tmp/me.png")
	require.NoError(t, err)

	assert.Equal(t, gotKey, key)
	assert.True(t, strings.HasPrefix(key, "profiles/u1/"))
	assert.Equal(t, "planner-photos", gotBucket)
	assert.Equal(t, "image/png", gotContentType)
	assert.Len(t, gotBody, len("\x89PNG\r\n\x1a\npayload"))
}

func TestUpload_ReadFailure(t *testing.T) {
	origRead := readFile
	t.Cleanup(func() { readFile = origRead })
	readFile = func(path string) ([]byte, error) {
		return nil, errors.New("no such file")
	}

	_, err := testStore().Upload(context.Background(), "u1", "/tmp/missing.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading photo")
}

func TestViewURL_Presigns(t *testing.T) {
	stubAWSConfig(t)

	origPresignClient := newS3PresignClient
	origPresignGet := presignGetObject
	t.Cleanup(func() {
		newS3PresignClient = origPresignClient
		presignGetObject = origPresignGet
	})

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient { return &s3.PresignClient{} }
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		require.Equal(t, "profiles/u1/key", *in.Key)
		return &v4.PresignedHTTPRequest{URL: "https://signed.example/photo"}, nil
	}

	url, err := testStore().ViewURL(context.Background(), "profiles/u1/key")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/photo", url)
}

func TestDelete_RemovesObject(t *testing.T) {
	stubAWSConfig(t)

	origDelete := deleteObject
	t.Cleanup(func() { deleteObject = origDelete })

	var deletedKey string
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
		deletedKey = *in.Key
		return &s3.DeleteObjectOutput{}, nil
	}

	require.NoError(t, testStore().Delete(context.Background(), "profiles/u1/key"))
	assert.Equal(t, "profiles/u1/key", deletedKey)
}

func TestDelete_EmptyKeyOrDisabled_NoOp(t *testing.T) {
	require.NoError(t, testStore().Delete(context.Background(), ""))

	disabled := New(Config{}, nil)
	require.False(t, disabled.Enabled())
	require.NoError(t, disabled.Delete(context.Background(), "anything"))
}

func TestStorageKey_Unique(t *testing.T) {
	a := StorageKey("u1")
	b := StorageKey("u1")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "profiles/u1/"))
}
