package oneflow

import (
	"context"
	"strings"
)

// Mock answers from canned data selected by keywords in the query.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Name() string    { return "oneflow-mock" }
func (m *Mock) Available() bool { return true }

var mockSections = []struct {
	keywords []string
	lines    []string
}{
	{
		keywords: []string{"task", "work", "todo", "progress"},
		lines: []string{
			"## OneFlow Tasks (Mocked)",
			"- Task: Implement enhanced context injection (in-progress)",
			"- Task: Design persona system (pending)",
			"- Task: Create adapter layer (pending)",
		},
	},
	{
		keywords: []string{"project", "work item", "feature"},
		lines: []string{
			"## OneFlow Projects (Mocked)",
			"- Project: KIRA Integration (active)",
			"- Project: Enhanced Context Injection (in-progress)",
		},
	},
	{
		keywords: []string{"user", "team", "person", "who"},
		lines: []string{
			"## OneFlow Users (Mocked)",
			"- User: Developer (active)",
			"- User: Business Analyst (active)",
		},
	},
}

func (m *Mock) Fetch(ctx context.Context, q Query) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lower := strings.ToLower(q.Text)
	var parts []string
	for _, s := range mockSections {
		for _, kw := range s.keywords {
			if strings.Contains(lower, kw) {
				parts = append(parts, s.lines...)
				break
			}
		}
	}
	return strings.Join(parts, "\n"), nil
}
