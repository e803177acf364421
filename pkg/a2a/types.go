package a2a

import (
	"time"

	"github.com/consultpro/agents/pkg/skills"
)

type AgentCard struct {
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	URL                string         `json:"url"`
	Version            string         `json:"version"`
	Capabilities       Capabilities   `json:"capabilities"`
	Skills             []skills.Skill `json:"skills"`
	DefaultInputModes  []string       `json:"defaultInputModes"`
	DefaultOutputModes []string       `json:"defaultOutputModes"`
}

type Capabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

// DefaultCard describes this service. url is the externally reachable A2A
// base address.
func DefaultCard(url string) *AgentCard {
	return &AgentCard{
		Name:        "ConsultPro AI",
		Description: "AI-powered consulting management assistant with analytics, planning, and client insight capabilities",
		URL:         url,
		Version:     "1.0.0",
		Capabilities: Capabilities{
			Streaming:         false,
			PushNotifications: false,
		},
		Skills:             skills.Catalog(),
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
	}
}

type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
)

func (s TaskState) Terminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed
}

type TaskStatus struct {
	State TaskState `json:"state"`
}

// Task is the unit of A2A work. Artifacts is never nil so it always encodes
// as a JSON array.
type Task struct {
	ID        string     `json:"id"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts"`

	CreatedAt time.Time         `json:"-"`
	Skill     skills.Capability `json:"-"`
}

func (t Task) clone() Task {
	out := t
	out.Artifacts = make([]Artifact, len(t.Artifacts))
	for i, a := range t.Artifacts {
		parts := make([]Part, len(a.Parts))
		copy(parts, a.Parts)
		out.Artifacts[i] = Artifact{Parts: parts}
	}
	return out
}

type Message struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Artifact struct {
	Parts []Part `json:"parts"`
}

func TextArtifact(text string) Artifact {
	return Artifact{Parts: []Part{{Type: "text", Text: text}}}
}

// taskView is the REST lookup shape, which adds the creation time.
type taskView struct {
	ID        string     `json:"id"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts"`
	CreatedAt time.Time  `json:"created_at"`
}

func viewOf(t Task) taskView {
	return taskView{
		ID:        t.ID,
		Status:    t.Status,
		Artifacts: t.Artifacts,
		CreatedAt: t.CreatedAt,
	}
}
