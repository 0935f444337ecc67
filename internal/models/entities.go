package models

// Profile is a monitoring profile: which checks run and with what
// settings. Subject to conflict resolution via UpdatedAt.
type Profile struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
	Checks      []string       `json:"checks,omitempty"`
	Active      bool           `json:"active"`
	UpdatedAt   string         `json:"updatedAt,omitempty"`
}

func (p *Profile) Type() EntityType     { return EntityProfile }
func (p *Profile) EntityID() string     { return p.ID }
func (p *Profile) VersionStamp() string { return p.UpdatedAt }

// Problem is a detected issue raised by a detector plugin.
type Problem struct {
	ID          string         `json:"id"`
	ProblemType string         `json:"type"`
	Severity    string         `json:"severity"`
	Description string         `json:"description,omitempty"`
	Source      string         `json:"source,omitempty"`
	Timestamp   string         `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Resolved    bool           `json:"resolved"`
}

func (p *Problem) Type() EntityType     { return EntityProblem }
func (p *Problem) EntityID() string     { return p.ID }
func (p *Problem) VersionStamp() string { return "" }

// MetricSample is one collected system metric data point.
type MetricSample struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Name      string         `json:"name"`
	Value     float64        `json:"value"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (m *MetricSample) Type() EntityType     { return EntityMetric }
func (m *MetricSample) EntityID() string     { return m.ID }
func (m *MetricSample) VersionStamp() string { return "" }

// LogEntry is one collected log line.
type LogEntry struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Source    string         `json:"source"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (l *LogEntry) Type() EntityType     { return EntityLog }
func (l *LogEntry) EntityID() string     { return l.ID }
func (l *LogEntry) VersionStamp() string { return "" }

// Plugin is an installed monitoring plugin and its configuration.
// Subject to conflict resolution via UpdatedAt.
type Plugin struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Version   string         `json:"version,omitempty"`
	Enabled   bool           `json:"enabled"`
	Config    map[string]any `json:"config,omitempty"`
	UpdatedAt string         `json:"updatedAt,omitempty"`
}

func (p *Plugin) Type() EntityType     { return EntityPlugin }
func (p *Plugin) EntityID() string     { return p.ID }
func (p *Plugin) VersionStamp() string { return p.UpdatedAt }

// Server is a discovered MCP server. Subject to conflict resolution via
// LastUpdate.
type Server struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Endpoint   string         `json:"endpoint"`
	Status     string         `json:"status,omitempty"`
	Tools      []string       `json:"tools,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	LastUpdate string         `json:"lastUpdate,omitempty"`
}

func (s *Server) Type() EntityType     { return EntityServer }
func (s *Server) EntityID() string     { return s.ID }
func (s *Server) VersionStamp() string { return s.LastUpdate }

// ServerMetric is one health sample for a discovered server.
type ServerMetric struct {
	ID             string  `json:"id"`
	ServerID       string  `json:"serverId"`
	ResponseTimeMs float64 `json:"responseTimeMs"`
	Uptime         float64 `json:"uptime"`
	Timestamp      string  `json:"timestamp"`
}

func (m *ServerMetric) Type() EntityType     { return EntityServerMetric }
func (m *ServerMetric) EntityID() string     { return m.ID }
func (m *ServerMetric) VersionStamp() string { return "" }
