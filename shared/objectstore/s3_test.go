package objectstore

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
	deleted []string
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObjectsWithContext(_ aws.Context, in *s3.DeleteObjectsInput, _ ...request.Option) (*s3.DeleteObjectsOutput, error) {
	for _, obj := range in.Delete.Objects {
		f.deleted = append(f.deleted, aws.StringValue(obj.Key))
		delete(f.objects, aws.StringValue(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

type fakeUploader struct {
	inputs []*s3manager.UploadInput
	bodies [][]byte
}

func (f *fakeUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeUploader) UploadWithContext(_ aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, data)
	return &s3manager.UploadOutput{Location: "s3://" + aws.StringValue(in.Bucket) + "/" + aws.StringValue(in.Key)}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestS3Store_UploadDownloadDelete(t *testing.T) {
	api := &fakeS3{objects: map[string][]byte{"uploads/u1/in.pdf": []byte("%PDF-in")}}
	uploader := &fakeUploader{}
	store := newS3Store("documents", api, uploader, discard())
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "results/u1/j1/out.pdf", []byte("%PDF-out"), "application/pdf"))
	require.Len(t, uploader.inputs, 1)
	assert.Equal(t, "documents", aws.StringValue(uploader.inputs[0].Bucket))
	assert.Equal(t, "results/u1/j1/out.pdf", aws.StringValue(uploader.inputs[0].Key))
	assert.Equal(t, "application/pdf", aws.StringValue(uploader.inputs[0].ContentType))
	assert.Equal(t, "%PDF-out", string(uploader.bodies[0]))

	data, err := store.Download(ctx, "uploads/u1/in.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-in", string(data))

	_, err = store.Download(ctx, "uploads/u1/missing.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, store.Delete(ctx, "uploads/u1/in.pdf", "results/u1/j1/out.pdf"))
	assert.Equal(t, []string{"uploads/u1/in.pdf", "results/u1/j1/out.pdf"}, api.deleted)

	require.NoError(t, store.Delete(ctx))
}

func TestS3Store_SignedURL(t *testing.T) {
	store, err := NewS3Store(S3Config{
		Bucket:          "documents",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:9000",
		ForcePathStyle:  true,
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	}, discard())
	require.NoError(t, err)

	url, err := store.SignedURL(context.Background(), "results/u1/j1/out.pdf", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "http://localhost:9000/documents/results/u1/j1/out.pdf")
	assert.Contains(t, url, "X-Amz-Expires=900")
	assert.Contains(t, url, "X-Amz-Signature=")
}
