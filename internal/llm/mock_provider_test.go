package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockProvider 可断言的后端
type MockProvider struct {
	mock.Mock
	config map[string]string
}

func (m *MockProvider) Initialize(config map[string]string) error {
	m.config = config
	return nil
}

func (m *MockProvider) GetName() string {
	return m.config[ConfigDisplayName]
}

func (m *MockProvider) CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*CompletionResponse)
	return resp, args.Error(1)
}

func (m *MockProvider) CheckConnection(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// recordingEvents 记录所有事件
type recordingEvents struct {
	requests  []RequestEvent
	responses []ResponseEvent
}

func (r *recordingEvents) LogRequest(ev RequestEvent)   { r.requests = append(r.requests, ev) }
func (r *recordingEvents) LogResponse(ev ResponseEvent) { r.responses = append(r.responses, ev) }

// newMockRegistry 每个后端类型都返回同一个 mock
func newMockRegistry(p *MockProvider, kinds ...string) *Registry {
	r := NewRegistry()
	for _, k := range kinds {
		r.Register(k, func() Provider { return p })
	}
	return r
}

// newFreshRegistry 每次创建新的 mock，用于比较独立实例
func newFreshRegistry(created *[]*MockProvider, kinds ...string) *Registry {
	r := NewRegistry()
	for _, k := range kinds {
		r.Register(k, func() Provider {
			p := &MockProvider{}
			*created = append(*created, p)
			return p
		})
	}
	return r
}
