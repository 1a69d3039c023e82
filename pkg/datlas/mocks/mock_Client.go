// Package mocks provides test doubles for the datlas client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	"github.com/sells-group/industry-viz/internal/model"
	datlas "github.com/sells-group/industry-viz/pkg/datlas"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Industry provides a mock function with given fields: ctx, id
func (_m *MockClient) Industry(ctx context.Context, id string) (*model.Industry, error) {
	ret := _m.Called(ctx, id)

	if len(ret) == 0 {
		panic("no return value specified for Industry")
	}

	var r0 *model.Industry
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*model.Industry, error)); ok {
		return rf(ctx, id)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Industry)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// Participants provides a mock function with given fields: ctx, id, level
func (_m *MockClient) Participants(ctx context.Context, id string, level datlas.Level) ([]model.Record, error) {
	return _m.records("Participants", ctx, id, level)
}

// Occupations provides a mock function with given fields: ctx, id, level
func (_m *MockClient) Occupations(ctx context.Context, id string, level datlas.Level) ([]model.Record, error) {
	return _m.records("Occupations", ctx, id, level)
}

func (_m *MockClient) records(method string, ctx context.Context, id string, level datlas.Level) ([]model.Record, error) {
	ret := _m.MethodCalled(method, ctx, id, level)

	if len(ret) == 0 {
		panic("no return value specified for " + method)
	}

	var r0 []model.Record
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, datlas.Level) ([]model.Record, error)); ok {
		return rf(ctx, id, level)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.Record)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// Metadata provides a mock function with given fields: ctx, table, etag
func (_m *MockClient) Metadata(ctx context.Context, table string, etag string) (*datlas.MetadataResult, error) {
	ret := _m.Called(ctx, table, etag)

	if len(ret) == 0 {
		panic("no return value specified for Metadata")
	}

	var r0 *datlas.MetadataResult
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (*datlas.MetadataResult, error)); ok {
		return rf(ctx, table, etag)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*datlas.MetadataResult)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}

var _ datlas.Client = (*MockClient)(nil)
