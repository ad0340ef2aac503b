package handler

import (
	"context"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/api/model"
	"github.com/cuongbtq/pdf-gateway/internal/api/storage"
	"github.com/cuongbtq/pdf-gateway/internal/pipeline"
	"github.com/stretchr/testify/mock"
)

type mockJobStore struct {
	mock.Mock
}

func (m *mockJobStore) CreateJob(ctx context.Context, job *model.Job) error {
	return m.Called(ctx, job).Error(0)
}

func (m *mockJobStore) GetJobForUser(ctx context.Context, jobID, userID string) (*model.Job, error) {
	args := m.Called(ctx, jobID, userID)
	job, _ := args.Get(0).(*model.Job)
	return job, args.Error(1)
}

func (m *mockJobStore) GetJobByIdempotencyKey(ctx context.Context, userID, key string) (*model.Job, error) {
	args := m.Called(ctx, userID, key)
	job, _ := args.Get(0).(*model.Job)
	return job, args.Error(1)
}

func (m *mockJobStore) ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.Job, error) {
	args := m.Called(ctx, filter)
	jobs, _ := args.Get(0).([]model.Job)
	return jobs, args.Error(1)
}

func (m *mockJobStore) MarkJobRunning(ctx context.Context, jobID, workerID string) error {
	return m.Called(ctx, jobID, workerID).Error(0)
}

func (m *mockJobStore) FinishJob(ctx context.Context, jobID, status string, result any, errorMsg string) error {
	return m.Called(ctx, jobID, status, result, errorMsg).Error(0)
}

func (m *mockJobStore) CancelJob(ctx context.Context, jobID, userID string) (*model.Job, error) {
	args := m.Called(ctx, jobID, userID)
	job, _ := args.Get(0).(*model.Job)
	return job, args.Error(1)
}

func (m *mockJobStore) DeleteJob(ctx context.Context, jobID, userID string) (*model.Job, error) {
	args := m.Called(ctx, jobID, userID)
	job, _ := args.Get(0).(*model.Job)
	return job, args.Error(1)
}

func (m *mockJobStore) JobUsage(ctx context.Context, userID string, since time.Time) (map[string]int, error) {
	args := m.Called(ctx, userID, since)
	usage, _ := args.Get(0).(map[string]int)
	return usage, args.Error(1)
}

type mockKeyStore struct {
	mock.Mock
}

func (m *mockKeyStore) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockKeyStore) ListAPIKeys(ctx context.Context, userID string) ([]model.APIKey, error) {
	args := m.Called(ctx, userID)
	keys, _ := args.Get(0).([]model.APIKey)
	return keys, args.Error(1)
}

func (m *mockKeyStore) RevokeAPIKey(ctx context.Context, keyID, userID string) error {
	return m.Called(ctx, keyID, userID).Error(0)
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Validate(job pipeline.Job) error {
	return m.Called(job).Error(0)
}

func (m *mockRunner) Run(ctx context.Context, job pipeline.Job) (*pipeline.Result, error) {
	args := m.Called(ctx, job)
	result, _ := args.Get(0).(*pipeline.Result)
	return result, args.Error(1)
}

func (m *mockRunner) SignURL(ctx context.Context, outputPath string) (string, error) {
	args := m.Called(ctx, outputPath)
	return args.String(0), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, body []byte, contentType string) error {
	return m.Called(ctx, body, contentType).Error(0)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Upload(ctx context.Context, objectPath string, data []byte, contentType string) error {
	return m.Called(ctx, objectPath, data, contentType).Error(0)
}

func (m *mockStore) Download(ctx context.Context, objectPath string) ([]byte, error) {
	args := m.Called(ctx, objectPath)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockStore) SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, objectPath, ttl)
	return args.String(0), args.Error(1)
}

func (m *mockStore) Delete(ctx context.Context, objectPaths ...string) error {
	args := make([]interface{}, 0, len(objectPaths)+1)
	args = append(args, ctx)
	for _, p := range objectPaths {
		args = append(args, p)
	}
	return m.Called(args...).Error(0)
}
