package config

const defaultBasePrompt = "You are KIRA, a helpful assistant for a team that works in chat. " +
	"Answer the user's message using the context provided. If the context does not cover the question, say so."

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:   "info",
			BasePrompt: defaultBasePrompt,
		},
		Server: ServerConfig{
			Enabled:    true,
			Host:       "127.0.0.1",
			Port:       8000,
			WSPath:     "/ws",
			BusBuffer:  100,
			MaxBodyKiB: 1024,
		},
		Memory: MemoryConfig{
			Enabled:     true,
			DBPath:      "~/.kirabridge/memory.db",
			SearchLimit: 5,
			Extract:     true,
		},
		Personas: PersonasConfig{
			Dir:   "~/.kirabridge/personas",
			Watch: true,
		},
		OneFlow: OneFlowConfig{
			Enabled:        true,
			Mocked:         true,
			TimeoutSeconds: 10,
		},
		Assembler: AssemblerConfig{
			SourceTimeoutMs: 5000,
			Concurrent:      true,
		},
		Agent: AgentConfig{
			Mode:        "context",
			Model:       "gpt-4o-mini",
			TimeoutSecs: 60,
			Concurrency: 3,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		MCP: MCPConfig{
			Enabled: true,
		},
	}
}
