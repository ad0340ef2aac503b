package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/api/domain"
	"github.com/cuongbtq/pdf-gateway/internal/api/model"
	"github.com/cuongbtq/pdf-gateway/internal/api/storage"
	"github.com/cuongbtq/pdf-gateway/internal/auth"
	"github.com/cuongbtq/pdf-gateway/internal/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeys struct {
	created []*model.APIKey
	list    []model.APIKey
	revoked []string
	plans   map[string]string
}

func (f *fakeKeys) CreateAPIKey(_ context.Context, key *model.APIKey) error {
	f.created = append(f.created, key)
	return nil
}

func (f *fakeKeys) ListAPIKeys(_ context.Context, _ string) ([]model.APIKey, error) {
	return f.list, nil
}

func (f *fakeKeys) RevokeAPIKey(_ context.Context, keyID, _ string) error {
	if keyID == "missing" {
		return domain.ErrAPIKeyNotFound
	}
	f.revoked = append(f.revoked, keyID)
	return nil
}

func (f *fakeKeys) SetAPIKeyPlan(_ context.Context, userID, plan string) (int64, error) {
	if f.plans == nil {
		f.plans = map[string]string{}
	}
	f.plans[userID] = plan
	return 2, nil
}

type fakeJobs struct {
	byStatus map[string][]model.Job
	stale    map[string]bool
	reset    []string
}

func (f *fakeJobs) ListJobs(_ context.Context, filter storage.JobFilter) ([]model.Job, error) {
	return f.byStatus[filter.Status], nil
}

func (f *fakeJobs) ResetStaleJob(_ context.Context, jobID string, _ time.Time) error {
	if !f.stale[jobID] {
		return domain.ErrJobStateConflict
	}
	f.reset = append(f.reset, jobID)
	return nil
}

type fakePublisher struct {
	bodies []string
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, body []byte, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.bodies = append(f.bodies, string(body))
	return nil
}

func newTestRoot(env *Env) (*cobra.Command, *bytes.Buffer) {
	root := &cobra.Command{Use: "pdfctl", SilenceUsage: true, SilenceErrors: true}
	open := func() (*Env, error) { return env, nil }
	InitKeyCommands(root, open)
	InitJobCommands(root, open)
	InitToolCommands(root)

	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(io.Discard)
	return root, out
}

func newTestEnv() (*Env, *fakeKeys, *fakeJobs, *fakePublisher) {
	keys := &fakeKeys{}
	jobs := &fakeJobs{byStatus: map[string][]model.Job{}, stale: map[string]bool{}}
	pub := &fakePublisher{}
	return &Env{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Keys:       keys,
		Jobs:       jobs,
		Publisher:  pub,
		StaleAfter: 2 * time.Minute,
		Plans: map[string]config.PlanConfig{
			"free": {RequestsPerMinute: 10, MonthlyJobs: 100},
			"pro":  {RequestsPerMinute: 100},
		},
	}, keys, jobs, pub
}

func TestKeysCreate(t *testing.T) {
	env, keys, _, _ := newTestEnv()
	root, out := newTestRoot(env)

	root.SetArgs([]string{"keys", "create",
		"--user", "8f0e2a4c-1111-4c3b-9a55-000000000001",
		"--name", "ci", "--plan", "pro", "--rpm", "120", "--expires-in-days", "30"})
	require.NoError(t, root.Execute())

	require.Len(t, keys.created, 1)
	key := keys.created[0]
	assert.Equal(t, "ci", key.Name)
	assert.Equal(t, "pro", key.Plan)
	require.NotNil(t, key.RateLimitPerMinute)
	assert.Equal(t, 120, *key.RateLimitPerMinute)
	require.NotNil(t, key.ExpiresAt)
	assert.Equal(t, key.CreatedAt.AddDate(0, 0, 30), *key.ExpiresAt)

	// only the hash is stored, the plaintext is printed
	assert.Contains(t, out.String(), key.KeyID)
	assert.NotContains(t, out.String(), key.KeyHash)
	for _, line := range bytes.Split(out.Bytes(), []byte("\n")) {
		if bytes.HasPrefix(line, []byte("key:")) {
			plaintext := string(bytes.TrimSpace(bytes.TrimPrefix(line, []byte("key:"))))
			assert.Equal(t, key.KeyHash, auth.HashKey(plaintext))
		}
	}
}

func TestKeysCreate_RejectsBadUser(t *testing.T) {
	env, keys, _, _ := newTestEnv()
	root, _ := newTestRoot(env)

	root.SetArgs([]string{"keys", "create", "--user", "bob", "--name", "ci"})
	assert.Error(t, root.Execute())
	assert.Empty(t, keys.created)
}

func TestKeysCreate_RejectsUnknownPlan(t *testing.T) {
	env, keys, _, _ := newTestEnv()
	root, _ := newTestRoot(env)

	root.SetArgs([]string{"keys", "create",
		"--user", "8f0e2a4c-1111-4c3b-9a55-000000000001", "--name", "ci", "--plan", "platinum"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown plan "platinum"`)
	assert.Empty(t, keys.created)
}

func TestKeysSetPlan(t *testing.T) {
	env, keys, _, _ := newTestEnv()
	root, out := newTestRoot(env)
	userID := "8f0e2a4c-1111-4c3b-9a55-000000000001"

	root.SetArgs([]string{"keys", "set-plan", "--user", userID, "--plan", "free"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "free", keys.plans[userID])
	assert.Contains(t, out.String(), "moved 2 key(s) to free")

	root.SetArgs([]string{"keys", "set-plan", "--user", userID, "--plan", "gold"})
	assert.Error(t, root.Execute())
	assert.Equal(t, "free", keys.plans[userID])
}

func TestKeysListAndRevoke(t *testing.T) {
	env, keys, _, _ := newTestEnv()
	past := time.Now().Add(-time.Hour)
	keys.list = []model.APIKey{
		{KeyID: "k1", UserID: "u1", Name: "live", KeyPrefix: "pk_abc", Plan: "free"},
		{KeyID: "k2", UserID: "u1", Name: "old", KeyPrefix: "pk_def", Plan: "free", RevokedAt: &past},
		{KeyID: "k3", UserID: "u1", Name: "lapsed", KeyPrefix: "pk_ghi", Plan: "free", ExpiresAt: &past},
	}
	root, out := newTestRoot(env)

	root.SetArgs([]string{"keys", "list"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "active")
	assert.Contains(t, out.String(), "revoked")
	assert.Contains(t, out.String(), "expired")

	root.SetArgs([]string{"keys", "revoke", "k1"})
	require.NoError(t, root.Execute())
	assert.Equal(t, []string{"k1"}, keys.revoked)

	root.SetArgs([]string{"keys", "revoke", "missing"})
	assert.ErrorIs(t, root.Execute(), domain.ErrAPIKeyNotFound)
}

func TestJobsRequeue(t *testing.T) {
	env, _, jobs, pub := newTestEnv()
	jobs.byStatus[domain.JobStatusPending] = []model.Job{{JobID: "p1"}, {JobID: "p2"}}
	jobs.byStatus[domain.JobStatusRunning] = []model.Job{{JobID: "r1"}, {JobID: "r2"}}
	jobs.stale["r2"] = true
	root, out := newTestRoot(env)

	root.SetArgs([]string{"jobs", "requeue"})
	require.NoError(t, root.Execute())

	assert.Equal(t, []string{"r2"}, jobs.reset)
	assert.Equal(t, []string{`{"job_id":"p1"}`, `{"job_id":"p2"}`, `{"job_id":"r2"}`}, pub.bodies)
	assert.Contains(t, out.String(), "requeued 3 job(s)")
}

func TestJobsRequeue_DryRun(t *testing.T) {
	env, _, jobs, pub := newTestEnv()
	jobs.byStatus[domain.JobStatusPending] = []model.Job{{JobID: "p1"}}
	jobs.byStatus[domain.JobStatusRunning] = []model.Job{{JobID: "r1"}}
	jobs.stale["r1"] = true
	root, out := newTestRoot(env)

	root.SetArgs([]string{"jobs", "requeue", "--dry-run"})
	require.NoError(t, root.Execute())

	assert.Empty(t, pub.bodies)
	assert.Empty(t, jobs.reset)
	assert.Contains(t, out.String(), "would republish p1")
	assert.Contains(t, out.String(), "requeued 0 job(s)")
}

func TestJobsRequeue_PublishFailure(t *testing.T) {
	env, _, jobs, pub := newTestEnv()
	jobs.byStatus[domain.JobStatusPending] = []model.Job{{JobID: "p1"}}
	pub.err = errors.New("channel closed")
	root, _ := newTestRoot(env)

	root.SetArgs([]string{"jobs", "requeue"})
	assert.ErrorContains(t, root.Execute(), "failed to publish job p1")
}

func TestJobsList(t *testing.T) {
	env, _, jobs, _ := newTestEnv()
	worker := "host-1"
	jobs.byStatus[""] = []model.Job{
		{JobID: "j1", UserID: "u1", JobType: "merge", Status: domain.JobStatusRunning, MaxRetries: 3, WorkerID: &worker},
		{JobID: "j2", UserID: "u1", JobType: "rotate", Status: domain.JobStatusPending, MaxRetries: 3},
	}
	root, out := newTestRoot(env)

	root.SetArgs([]string{"jobs", "list", "--limit", "1"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "j1")
	assert.Contains(t, out.String(), "host-1")
	assert.NotContains(t, out.String(), "j2")

	root.SetArgs([]string{"jobs", "list", "--limit", "0"})
	assert.Error(t, root.Execute())
}

func TestTools(t *testing.T) {
	root, out := newTestRoot(nil)

	root.SetArgs([]string{"tools"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "merge")
	assert.Contains(t, out.String(), "stirling")

	out.Reset()
	root.SetArgs([]string{"tools", "rotate", "--json"})
	require.NoError(t, root.Execute())
	var tool map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &tool))
	assert.Equal(t, "rotate", tool["name"])

	root.SetArgs([]string{"tools", "no-such-tool"})
	assert.Error(t, root.Execute())
}
