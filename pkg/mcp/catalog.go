package mcp

import (
	"github.com/google/jsonschema-go/jsonschema"
)

const (
	ServerName      = "ConsultPro MCP Server"
	ServerVersion   = "1.0.0"
	ProtocolVersion = "2024-11-05"
)

const (
	ToolGetClients          = "get_clients"
	ToolGetClientDetails    = "get_client_details"
	ToolGetProjects         = "get_projects"
	ToolGetProjectDetails   = "get_project_details"
	ToolGetConsultants      = "get_consultants"
	ToolGetFinancialSummary = "get_financial_summary"
	ToolGetKPIs             = "get_kpis"
	ToolSearchData          = "search_data"
)

// Tool is one entry of the advertised catalog. The input schema is advisory;
// arguments are not validated against it.
type Tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
}

func prop(typ, desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: typ, Description: desc}
}

func object(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	if props == nil {
		props = map[string]*jsonschema.Schema{}
	}
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

var catalog = []Tool{
	{
		Name:        ToolGetClients,
		Description: "List all clients with optional status filter",
		InputSchema: object(map[string]*jsonschema.Schema{
			"status": prop("string", "Filter by status: lead, active, on_hold, completed, churned"),
		}),
	},
	{
		Name:        ToolGetClientDetails,
		Description: "Get detailed client info including projects, invoices, and KPIs",
		InputSchema: object(map[string]*jsonschema.Schema{
			"client_id": prop("number", "Client ID"),
		}, "client_id"),
	},
	{
		Name:        ToolGetProjects,
		Description: "List projects with optional filters",
		InputSchema: object(map[string]*jsonschema.Schema{
			"status":    prop("string", "Filter by status"),
			"client_id": prop("number", "Filter by client"),
		}),
	},
	{
		Name:        ToolGetProjectDetails,
		Description: "Get project with time entries and budget information",
		InputSchema: object(map[string]*jsonschema.Schema{
			"project_id": prop("number", "Project ID"),
		}, "project_id"),
	},
	{
		Name:        ToolGetConsultants,
		Description: "List consultants with utilization information",
		InputSchema: object(map[string]*jsonschema.Schema{
			"is_active": prop("boolean", "Filter by active status"),
		}),
	},
	{
		Name:        ToolGetFinancialSummary,
		Description: "Get revenue, outstanding invoices, and billing summary",
		InputSchema: object(nil),
	},
	{
		Name:        ToolGetKPIs,
		Description: "Get KPIs optionally filtered by client",
		InputSchema: object(map[string]*jsonschema.Schema{
			"client_id": prop("number", "Filter by client"),
		}),
	},
	{
		Name:        ToolSearchData,
		Description: "Search across clients, projects, and consultants by keyword",
		InputSchema: object(map[string]*jsonschema.Schema{
			"query": prop("string", "Search keyword"),
		}, "query"),
	},
}

// Tools returns the catalog in its advertised order.
func Tools() []Tool {
	out := make([]Tool, len(catalog))
	copy(out, catalog)
	return out
}

func LookupTool(name string) (Tool, bool) {
	for _, t := range catalog {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}
