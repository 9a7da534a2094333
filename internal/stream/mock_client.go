package stream

import (
	"context"
	"fmt"
	"sort"
	"sync"

	stream "github.com/GetStream/stream-go2/v8"
	"github.com/google/uuid"
)

// MockCall records a method call for assertion
type MockCall struct {
	Method string
	Args   []interface{}
}

// MockClient is an in-memory ActivityReader and ActivityPublisher for
// tests and local runs without Stream credentials. Publish fans out to
// the activity's To feeds the way Stream does.
type MockClient struct {
	mu sync.Mutex

	Calls []MockCall

	// Set these to inject failures
	ActivitiesFunc func(group, feedID string, limit int, idLT string) ([]stream.Activity, error)
	PublishFunc    func(group, feedID string, activity stream.Activity) (string, error)

	feeds map[string][]stream.Activity
}

var (
	_ ActivityReader    = (*MockClient)(nil)
	_ ActivityPublisher = (*MockClient)(nil)
)

func NewMockClient() *MockClient {
	return &MockClient{feeds: make(map[string][]stream.Activity)}
}

func (m *MockClient) recordCall(method string, args ...interface{}) {
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// CallCount returns how many times method was called
func (m *MockClient) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *MockClient) Activities(ctx context.Context, group, feedID string, limit int, idLT string) ([]stream.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordCall("Activities", group, feedID, limit, idLT)

	if m.ActivitiesFunc != nil {
		return m.ActivitiesFunc(group, feedID, limit, idLT)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	acts := m.feeds[FeedRef(group, feedID)]
	start := 0
	if idLT != "" {
		start = len(acts)
		for i, act := range acts {
			if act.ID == idLT {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(acts) {
		end = len(acts)
	}
	out := make([]stream.Activity, end-start)
	copy(out, acts[start:end])
	return out, nil
}

func (m *MockClient) Publish(ctx context.Context, group, feedID string, activity stream.Activity) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordCall("Publish", group, feedID, activity)

	if m.PublishFunc != nil {
		return m.PublishFunc(group, feedID, activity)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, err := uuid.NewUUID()
	if err != nil {
		return "", fmt.Errorf("failed to generate activity id: %w", err)
	}
	activity.ID = id.String()

	m.insert(FeedRef(group, feedID), activity)
	for _, ref := range activity.To {
		m.insert(ref, activity)
	}
	return activity.ID, nil
}

// insert keeps each feed newest first. Equal times keep publish order.
func (m *MockClient) insert(ref string, activity stream.Activity) {
	acts := append(m.feeds[ref], activity)
	sort.SliceStable(acts, func(i, j int) bool {
		return acts[i].Time.After(acts[j].Time.Time)
	})
	m.feeds[ref] = acts
}
