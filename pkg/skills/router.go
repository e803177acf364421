package skills

import "strings"

// Rule routes text to Capability when any keyword occurs in it.
type Rule struct {
	Capability Capability
	Keywords   []string
}

func (r Rule) matches(lower string) bool {
	for _, k := range r.Keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// TaskRules backs A2A task routing. Order matters: the first matching rule
// wins, so "client health plan" goes to planning.
var TaskRules = []Rule{
	{Capability: Planning, Keywords: []string{"plan", "resource", "allocat", "timeline", "schedule", "capacity"}},
	{Capability: ClientInsights, Keywords: []string{"client", "churn", "health check", "upsell", "retention"}},
}

// ChatRules backs /agents/chat, which matches a broader vocabulary.
var ChatRules = []Rule{
	{Capability: Planning, Keywords: []string{"plan", "resource", "allocat", "timeline", "schedule", "capacity", "assign", "staff"}},
	{Capability: ClientInsights, Keywords: []string{"client", "churn", "health", "upsell", "retention", "relationship", "account"}},
}

// Router maps free text to a capability using an ordered rule list, falling
// back to Default when nothing matches.
type Router struct {
	Rules   []Rule
	Default Capability
}

func NewRouter(rules []Rule) *Router {
	return &Router{Rules: rules, Default: Analytics}
}

func (r *Router) Route(text string) Capability {
	lower := strings.ToLower(text)
	for _, rule := range r.Rules {
		if rule.matches(lower) {
			return rule.Capability
		}
	}
	return r.Default
}

var (
	taskRouter = NewRouter(TaskRules)
	chatRouter = NewRouter(ChatRules)
)

// Route picks the capability for an A2A task message.
func Route(text string) Capability {
	return taskRouter.Route(text)
}

// RouteChat picks the capability for a chat message without an explicit
// agent type.
func RouteChat(text string) Capability {
	return chatRouter.Route(text)
}
