package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"fts-benchmark/internal/domain"
)

type MockRedisClient struct {
	mock.Mock
	redis.UniversalClient
}

func (m *MockRedisClient) XGroupCreateMkStream(ctx context.Context, stream string, group string, start string) *redis.StatusCmd {
	args := m.Called(ctx, stream, group, start)
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetErr(args.Error(0))
	return cmd
}

func (m *MockRedisClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	args := m.Called(ctx, a)
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal(args.String(0))
	cmd.SetErr(args.Error(1))
	return cmd
}

func (m *MockRedisClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	args := m.Called(ctx, stream, group, ids)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetErr(args.Error(0))
	return cmd
}

func (m *MockRedisClient) XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd {
	args := m.Called(ctx, a)
	cmd := redis.NewXAutoClaimCmd(ctx)
	if v := args.Get(0); v != nil {
		cmd.SetVal(v.([]redis.XMessage), args.String(1))
	}
	cmd.SetErr(args.Error(2))
	return cmd
}

func (m *MockRedisClient) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	args := m.Called(ctx, key, values)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetErr(args.Error(0))
	return cmd
}

func (m *MockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	args := m.Called(ctx, key, expiration)
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	cmd.SetErr(args.Error(0))
	return cmd
}

func (m *MockRedisClient) BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	args := m.Called(ctx, timeout, keys)
	cmd := redis.NewStringSliceCmd(ctx)
	if v := args.Get(0); v != nil {
		cmd.SetVal(v.([]string))
	}
	cmd.SetErr(args.Error(1))
	return cmd
}

func (m *MockRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	args := m.Called(ctx)
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetErr(args.Error(0))
	return cmd
}

func (m *MockRedisClient) XInfoStream(ctx context.Context, key string) *redis.XInfoStreamCmd {
	args := m.Called(ctx, key)
	cmd := redis.NewXInfoStreamCmd(ctx, key)
	cmd.SetErr(args.Error(0))
	return cmd
}

func (m *MockRedisClient) Close() error {
	return m.Called().Error(0)
}

type RedisClientTestSuite struct {
	suite.Suite
	mock   *MockRedisClient
	client *redisClient
}

func (suite *RedisClientTestSuite) SetupTest() {
	suite.mock = new(MockRedisClient)
	suite.client = newRedisClient(suite.mock, Options{
		StreamName:    "jobs",
		ConsumerGroup: "workers",
		ConsumerName:  "consumer-1",
		ResultTTL:     time.Minute,
	}, zaptest.NewLogger(suite.T()).Sugar())
}

func testJob() domain.Job {
	return domain.Job{
		ID:    "job-1",
		RunID: "run-1",
		Mode:  domain.ModePoint,
		Spec:  domain.NewModelSpec("HOFTS", 2),
		Train: []float64{1, 2, 3},
		Test:  []float64{4, 5},
	}
}

func (suite *RedisClientTestSuite) TestCreateConsumerGroupToleratesBusyGroup() {
	suite.mock.On("XGroupCreateMkStream", mock.Anything, "jobs", "workers", "0").
		Return(errors.New("BUSYGROUP Consumer Group name already exists")).Once()
	suite.NoError(suite.client.createConsumerGroup(context.Background()))

	suite.mock.On("XGroupCreateMkStream", mock.Anything, "jobs", "workers", "0").
		Return(errors.New("connection refused")).Once()
	suite.Error(suite.client.createConsumerGroup(context.Background()))
}

func (suite *RedisClientTestSuite) TestPublishJob() {
	var published *redis.XAddArgs
	suite.mock.On("XAdd", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(1).(*redis.XAddArgs) }).
		Return("1-0", nil)

	suite.Require().NoError(suite.client.PublishJob(context.Background(), testJob()))
	suite.Equal("jobs", published.Stream)

	values := published.Values.(map[string]interface{})
	suite.Equal("job-1", values["job_id"])

	job, err := decodeJob(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"data": values["data"]}})
	suite.Require().NoError(err)
	suite.Equal(testJob().Spec, job.Spec)
	suite.Equal([]float64{4, 5}, job.Test)
}

func (suite *RedisClientTestSuite) TestPublishJobError() {
	suite.mock.On("XAdd", mock.Anything, mock.Anything).Return("", errors.New("down"))
	suite.Error(suite.client.PublishJob(context.Background(), testJob()))
}

func jobMessage(t *testing.T, id string) redis.XMessage {
	t.Helper()
	data, err := json.Marshal(testJob())
	require.NoError(t, err)
	return redis.XMessage{ID: id, Values: map[string]interface{}{"data": string(data)}}
}

func (suite *RedisClientTestSuite) TestProcessMessageAcksOnlyWhenHandlerAcks() {
	suite.mock.On("XAck", mock.Anything, "jobs", "workers", []string{"1-0"}).Return(nil)

	var acks []func()
	handler := func(_ context.Context, job domain.Job, ack func()) {
		suite.Equal("job-1", job.ID)
		acks = append(acks, ack)
	}

	suite.client.processMessage(context.Background(), jobMessage(suite.T(), "1-0"), handler)
	suite.Require().Len(acks, 1)
	suite.mock.AssertNotCalled(suite.T(), "XAck", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	acks[0]()
	suite.mock.AssertNumberOfCalls(suite.T(), "XAck", 1)
}

func (suite *RedisClientTestSuite) TestProcessMessageAcksMalformedEntries() {
	suite.mock.On("XAck", mock.Anything, "jobs", "workers", []string{"2-0"}).Return(nil)

	handler := func(context.Context, domain.Job, func()) { suite.Fail("malformed entries are not handled") }
	suite.client.processMessage(context.Background(),
		redis.XMessage{ID: "2-0", Values: map[string]interface{}{"data": "{broken"}}, handler)

	suite.mock.AssertNumberOfCalls(suite.T(), "XAck", 1)
}

func (suite *RedisClientTestSuite) TestClaimStaleRedeliversPendingJobs() {
	suite.client.claimMinIdle = 2 * time.Minute
	suite.mock.On("XAutoClaim", mock.Anything, mock.MatchedBy(func(a *redis.XAutoClaimArgs) bool {
		return a.Start == "0-0" && a.Consumer == "consumer-1" && a.MinIdle == 2*time.Minute
	})).Return([]redis.XMessage{jobMessage(suite.T(), "1-0")}, "5-0", nil).Once()
	suite.mock.On("XAutoClaim", mock.Anything, mock.MatchedBy(func(a *redis.XAutoClaimArgs) bool {
		return a.Start == "5-0"
	})).Return([]redis.XMessage{jobMessage(suite.T(), "5-0")}, "0-0", nil).Once()

	var claimed []string
	suite.client.claimStale(context.Background(), func(_ context.Context, job domain.Job, _ func()) {
		claimed = append(claimed, job.ID)
	})

	suite.Equal([]string{"job-1", "job-1"}, claimed)
	suite.mock.AssertExpectations(suite.T())
}

func (suite *RedisClientTestSuite) TestClaimStaleError() {
	suite.mock.On("XAutoClaim", mock.Anything, mock.Anything).Return(nil, "", errors.New("NOGROUP"))

	suite.client.claimStale(context.Background(), func(context.Context, domain.Job, func()) {
		suite.Fail("nothing was claimed")
	})
	suite.mock.AssertNumberOfCalls(suite.T(), "XAutoClaim", 1)
}

func (suite *RedisClientTestSuite) TestPublishResult() {
	res := domain.Succeed(testJob(), domain.Snapshot{Spec: testJob().Spec, Size: 4}, map[string]float64{"rmse": 1.5})
	suite.mock.On("LPush", mock.Anything, "benchmark-results:job-1", mock.Anything).Return(nil)
	suite.mock.On("Expire", mock.Anything, "benchmark-results:job-1", time.Minute).Return(nil)

	suite.NoError(suite.client.PublishResult(context.Background(), res))
	suite.mock.AssertExpectations(suite.T())
}

func (suite *RedisClientTestSuite) TestAwaitResult() {
	res := domain.Fail(testJob(), errors.New("boom"), "trace")
	data, err := json.Marshal(res)
	suite.Require().NoError(err)

	suite.mock.On("BLPop", mock.Anything, mock.Anything, []string{"benchmark-results:job-1"}).
		Return(nil, redis.Nil).Once()
	suite.mock.On("BLPop", mock.Anything, mock.Anything, []string{"benchmark-results:job-1"}).
		Return([]string{"benchmark-results:job-1", string(data)}, nil).Once()

	got, err := suite.client.AwaitResult(context.Background(), "job-1")
	suite.Require().NoError(err)
	suite.False(got.Succeeded())
	suite.Equal("boom", got.Failure.Exception)
	suite.Equal("trace", got.Failure.Output)
}

func (suite *RedisClientTestSuite) TestAwaitResultHonoursDeadline() {
	suite.mock.On("BLPop", mock.Anything, mock.Anything, mock.Anything).Return(nil, redis.Nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := suite.client.AwaitResult(ctx, "job-1")
	suite.ErrorIs(err, context.DeadlineExceeded)
}

func (suite *RedisClientTestSuite) TestHealthCheck() {
	suite.mock.On("Ping", mock.Anything).Return(nil).Once()
	suite.mock.On("XInfoStream", mock.Anything, "jobs").Return(errors.New("ERR no such key")).Once()
	suite.NoError(suite.client.HealthCheck(context.Background()))

	suite.mock.On("Ping", mock.Anything).Return(errors.New("refused")).Once()
	suite.Error(suite.client.HealthCheck(context.Background()))
}

func TestRedisClientTestSuite(t *testing.T) {
	suite.Run(t, new(RedisClientTestSuite))
}

func TestNewRedisClientDefaults(t *testing.T) {
	c := newRedisClient(new(MockRedisClient), Options{}, zaptest.NewLogger(t).Sugar())
	assert.Equal(t, DefaultStreamName, c.streamName)
	assert.Equal(t, DefaultConsumerGroup, c.consumerGroup)
	assert.Equal(t, DefaultResultTTL, c.resultTTL)
	assert.Equal(t, DefaultClaimMinIdle, c.claimMinIdle)
	require.NotEmpty(t, c.consumerName)
}
