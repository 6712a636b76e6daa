package plugin

// Lifecycle and wiring topics published by the runtime. Modules sequence
// their own setup against these (e.g. register commands only after
// TopicInitializing).
const (
	// TopicStarting fires when the host ready signal arrives.
	TopicStarting = "core.starting"

	// TopicInitializing fires before the first plugin module starts.
	TopicInitializing = "core.initializing"

	// TopicReady fires after every active plugin was given its chance to start.
	TopicReady = "core.ready"

	// TopicStopped fires on host shutdown.
	TopicStopped = "core.stopped"

	// TopicCommandRegistered fans out (name, meta) on every successful
	// server command registration.
	TopicCommandRegistered = "command.registered"

	// TopicClientSettings is the request topic answered with the assembled
	// client bootstrap payload.
	TopicClientSettings = "core.clientSettings"
)
