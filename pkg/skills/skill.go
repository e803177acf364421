package skills

import "fmt"

// Capability names one of the report producers a request can be routed to.
type Capability string

const (
	Analytics      Capability = "analytics"
	Planning       Capability = "planning"
	ClientInsights Capability = "client-insights"
)

func (c Capability) String() string {
	return string(c)
}

// Capabilities lists every capability in catalog order.
func Capabilities() []Capability {
	return []Capability{Analytics, Planning, ClientInsights}
}

// ParseCapability resolves an agent type name. Unknown names fail.
func ParseCapability(s string) (Capability, error) {
	for _, c := range Capabilities() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("skills: unknown capability %q", s)
}

// Skill is the public description of a capability as advertised on the
// agent card.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Examples    []string `json:"examples"`
}

var catalog = []Skill{
	{
		ID:          string(Analytics),
		Name:        "Business Analytics",
		Description: "Analyze revenue, project health, consultant performance, and client metrics",
		Tags:        []string{"analytics", "revenue", "performance"},
		Examples:    []string{"What is our total revenue?", "Show consultant utilization"},
	},
	{
		ID:          string(Planning),
		Name:        "Project Planning",
		Description: "Resource allocation, timeline analysis, and project plan generation",
		Tags:        []string{"planning", "resources", "timeline"},
		Examples:    []string{"Suggest resource allocation", "Analyze project timelines"},
	},
	{
		ID:          string(ClientInsights),
		Name:        "Client Insights",
		Description: "Client health checks, churn risk analysis, and upsell opportunities",
		Tags:        []string{"clients", "churn", "upsell"},
		Examples:    []string{"Run client health check", "Identify churn risks"},
	},
}

// Catalog returns a copy of the advertised skills.
func Catalog() []Skill {
	out := make([]Skill, len(catalog))
	copy(out, catalog)
	return out
}

func Lookup(c Capability) (Skill, bool) {
	for _, sk := range catalog {
		if sk.ID == string(c) {
			return sk, true
		}
	}
	return Skill{}, false
}

// Agent describes a report producer on /agents/list.
type Agent struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
}

var agents = []Agent{
	{
		ID:           string(Analytics),
		Name:         "Business Analytics Agent",
		Description:  "Analyzes revenue, project health, consultant performance, and business metrics",
		Capabilities: []string{"revenue analysis", "project health", "consultant performance", "client metrics"},
	},
	{
		ID:           string(Planning),
		Name:         "Project Planning Agent",
		Description:  "Helps with resource allocation, timeline analysis, and project planning",
		Capabilities: []string{"resource allocation", "timeline analysis", "project planning", "capacity planning"},
	},
	{
		ID:           string(ClientInsights),
		Name:         "Client Insights Agent",
		Description:  "Provides client health checks, churn risk analysis, and upsell opportunities",
		Capabilities: []string{"client health", "churn risk", "upsell opportunities", "relationship analysis"},
	},
}

func Agents() []Agent {
	out := make([]Agent, len(agents))
	copy(out, agents)
	return out
}
