package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDynamoDB struct {
	mock.Mock
}

func (m *MockDynamoDB) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.DescribeTableOutput), args.Error(1)
}

func (m *MockDynamoDB) ExportTableToPointInTime(ctx context.Context, params *dynamodb.ExportTableToPointInTimeInput, _ ...func(*dynamodb.Options)) (*dynamodb.ExportTableToPointInTimeOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.ExportTableToPointInTimeOutput), args.Error(1)
}

func (m *MockDynamoDB) DescribeExport(ctx context.Context, params *dynamodb.DescribeExportInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeExportOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.DescribeExportOutput), args.Error(1)
}

const (
	tableArn  = "arn:aws:dynamodb:us-east-1:000000000000:table/orders"
	exportArn = "arn:aws:dynamodb:us-east-1:000000000000:table/orders/export/01"
)

func describeTableOK() *dynamodb.DescribeTableOutput {
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{TableArn: aws.String(tableArn)}}
}

func exportOutput(status types.ExportStatus) *dynamodb.ExportTableToPointInTimeOutput {
	return &dynamodb.ExportTableToPointInTimeOutput{ExportDescription: &types.ExportDescription{
		ExportArn:    aws.String(exportArn),
		ExportStatus: status,
	}}
}

func describeExport(status types.ExportStatus, reason string) *dynamodb.DescribeExportOutput {
	desc := &types.ExportDescription{ExportArn: aws.String(exportArn), ExportStatus: status}
	if reason != "" {
		desc.FailureMessage = aws.String(reason)
	}
	return &dynamodb.DescribeExportOutput{ExportDescription: desc}
}

func startController(t *testing.T, client DynamoDBAPI, opts Options) *Controller {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	c := NewController(client, opts, nil)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop(context.Background()) })
	return c
}

func waitJob(t *testing.T, job *Job) (Status, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := job.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "job did not resolve")
	return st, err
}

func TestController_CompletesAfterPolling(t *testing.T) {
	client := new(MockDynamoDB)
	client.On("DescribeTable", mock.Anything, mock.MatchedBy(func(in *dynamodb.DescribeTableInput) bool {
		return aws.ToString(in.TableName) == "orders"
	})).Return(describeTableOK(), nil)

	var token string
	client.On("ExportTableToPointInTime", mock.Anything, mock.MatchedBy(func(in *dynamodb.ExportTableToPointInTimeInput) bool {
		token = aws.ToString(in.ClientToken)
		return aws.ToString(in.TableArn) == tableArn &&
			aws.ToString(in.S3Bucket) == "bucket" &&
			aws.ToString(in.S3Prefix) == "exports/orders" &&
			in.ExportFormat == types.ExportFormatIon &&
			in.ExportTime != nil
	})).Return(exportOutput(types.ExportStatusInProgress), nil)

	client.On("DescribeExport", mock.Anything, mock.Anything).
		Return(describeExport(types.ExportStatusInProgress, ""), nil).Once()
	client.On("DescribeExport", mock.Anything, mock.Anything).
		Return(describeExport(types.ExportStatusCompleted, ""), nil).Once()

	c := startController(t, client, Options{Bucket: "bucket", Prefix: "exports"})
	job, err := c.Trigger(context.Background(), "orders")
	require.NoError(t, err)

	st, err := waitJob(t, job)
	require.NoError(t, err)
	assert.True(t, job.IsDone())
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, exportArn, st.ExportArn)
	assert.Equal(t, "COMPLETED", st.ExportStatus)
	assert.Equal(t, "exports/orders", st.S3Prefix)
	assert.Equal(t, 2, st.Polls)
	assert.Equal(t, job.ID(), token)
	client.AssertExpectations(t)
}

func TestController_FailedExportResolvesWithoutError(t *testing.T) {
	client := new(MockDynamoDB)
	client.On("DescribeTable", mock.Anything, mock.Anything).Return(describeTableOK(), nil)
	client.On("ExportTableToPointInTime", mock.Anything, mock.Anything).
		Return(exportOutput(types.ExportStatusInProgress), nil)
	client.On("DescribeExport", mock.Anything, mock.Anything).
		Return(describeExport(types.ExportStatusFailed, "point in time recovery is not enabled"), nil)

	c := startController(t, client, Options{Bucket: "bucket"})
	job, err := c.Trigger(context.Background(), "orders")
	require.NoError(t, err)

	st, err := waitJob(t, job)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, "point in time recovery is not enabled", st.FailureMessage)
	assert.Equal(t, "orders", st.S3Prefix)
}

func TestController_TerminalOnTrigger(t *testing.T) {
	client := new(MockDynamoDB)
	client.On("DescribeTable", mock.Anything, mock.Anything).Return(describeTableOK(), nil)
	client.On("ExportTableToPointInTime", mock.Anything, mock.Anything).
		Return(exportOutput(types.ExportStatusCompleted), nil)

	c := startController(t, client, Options{Bucket: "bucket"})
	job, err := c.Trigger(context.Background(), "orders")
	require.NoError(t, err)

	st, err := waitJob(t, job)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, 0, st.Polls)
	client.AssertNotCalled(t, "DescribeExport", mock.Anything, mock.Anything)
}

func TestController_NonExistentTableFailsJob(t *testing.T) {
	client := new(MockDynamoDB)
	client.On("DescribeTable", mock.Anything, mock.Anything).
		Return(nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")})

	c := startController(t, client, Options{Bucket: "bucket"})
	job, err := c.Trigger(context.Background(), "missing")
	require.NoError(t, err)

	st, err := waitJob(t, job)
	require.Error(t, err)
	var notFound *types.ResourceNotFoundException
	assert.True(t, errors.As(err, &notFound))
	assert.Equal(t, StateFailed, st.State)
	assert.NotEmpty(t, st.Error)
	client.AssertNotCalled(t, "ExportTableToPointInTime", mock.Anything, mock.Anything)
}

func TestController_DescribeExportErrorFailsJob(t *testing.T) {
	client := new(MockDynamoDB)
	client.On("DescribeTable", mock.Anything, mock.Anything).Return(describeTableOK(), nil)
	client.On("ExportTableToPointInTime", mock.Anything, mock.Anything).
		Return(exportOutput(types.ExportStatusInProgress), nil)
	client.On("DescribeExport", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	c := startController(t, client, Options{Bucket: "bucket"})
	job, err := c.Trigger(context.Background(), "orders")
	require.NoError(t, err)

	_, err = waitJob(t, job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestController_PollLimit(t *testing.T) {
	client := new(MockDynamoDB)
	client.On("DescribeTable", mock.Anything, mock.Anything).Return(describeTableOK(), nil)
	client.On("ExportTableToPointInTime", mock.Anything, mock.Anything).
		Return(exportOutput(types.ExportStatusInProgress), nil)
	client.On("DescribeExport", mock.Anything, mock.Anything).
		Return(describeExport(types.ExportStatusInProgress, ""), nil)

	c := startController(t, client, Options{Bucket: "bucket", MaxPolls: 2})
	job, err := c.Trigger(context.Background(), "orders")
	require.NoError(t, err)

	_, err = waitJob(t, job)
	assert.ErrorIs(t, err, ErrPollLimitExceeded)
	client.AssertNumberOfCalls(t, "DescribeExport", 2)
}

func TestController_JobsRunInOrder(t *testing.T) {
	client := new(MockDynamoDB)
	client.On("DescribeTable", mock.Anything, mock.Anything).Return(describeTableOK(), nil)
	client.On("ExportTableToPointInTime", mock.Anything, mock.Anything).
		Return(exportOutput(types.ExportStatusCompleted), nil)

	c := startController(t, client, Options{Bucket: "bucket"})
	first, err := c.Trigger(context.Background(), "a")
	require.NoError(t, err)
	second, err := c.Trigger(context.Background(), "b")
	require.NoError(t, err)

	_, err = waitJob(t, second)
	require.NoError(t, err)
	assert.True(t, first.IsDone())
	assert.NotEqual(t, first.ID(), second.ID())
}

func TestController_TriggerRequiresRunning(t *testing.T) {
	c := NewController(new(MockDynamoDB), Options{}, nil)

	_, err := c.Trigger(context.Background(), "orders")
	assert.ErrorIs(t, err, ErrControllerStopped)

	require.NoError(t, c.Start(context.Background()))
	_, err = c.Trigger(context.Background(), "")
	assert.Error(t, err)

	require.NoError(t, c.Stop(context.Background()))
	_, err = c.Trigger(context.Background(), "orders")
	assert.ErrorIs(t, err, ErrControllerStopped)
	assert.NoError(t, c.Stop(context.Background()))
}

func TestController_StopCancelsRunningExport(t *testing.T) {
	client := new(MockDynamoDB)
	client.On("DescribeTable", mock.Anything, mock.Anything).Return(describeTableOK(), nil).Maybe()
	client.On("ExportTableToPointInTime", mock.Anything, mock.Anything).
		Return(exportOutput(types.ExportStatusInProgress), nil).Maybe()

	c := NewController(client, Options{Bucket: "bucket", PollInterval: time.Hour}, nil)
	require.NoError(t, c.Start(context.Background()))

	job, err := c.Trigger(context.Background(), "orders")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))

	_, err = waitJob(t, job)
	assert.ErrorIs(t, err, ErrControllerStopped)
	client.AssertNotCalled(t, "DescribeExport", mock.Anything, mock.Anything)
}

func TestNewController_DefaultPollInterval(t *testing.T) {
	c := NewController(new(MockDynamoDB), Options{}, nil)
	assert.Equal(t, DefaultPollInterval, c.opts.PollInterval)
}
