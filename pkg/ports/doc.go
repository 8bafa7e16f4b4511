/*
Package ports defines the driven ports (interfaces) of the convoflow engine.

These interfaces decouple the execution core from storage backends, chat
channels and credential vaults, so the same engine runs against the
in-memory adapters in tests and Redis plus WhatsApp in production.

# Key Interfaces

  - FlowRepository: resolves flow versions (production or draft) and a bot's main flow.
  - SessionStore: persists sessions, enforces one live session per address and
    performs the atomic PAUSED to ACTIVE claim used by the scheduler.
  - VariableStore: bot and session variables.
  - LogStore: append-only message, execution and AI-usage logs.
  - Transport: delivers outbound messages to a channel.
  - ProviderResolver: looks up AI provider credentials.
  - DistributedLocker: distributed locking for concurrent session access.
*/
package ports
