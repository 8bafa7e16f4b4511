/*
Package domain contains the core models of the convoflow engine.

It defines the versioned flow graph (nodes, edges and their typed
configurations), the conversation Session with its suspension state, the
variables a session can read and write, and the append-only log records the
engine produces. This package is kept pure: it performs no I/O and knows
nothing about persistence or transports.

# Key Entities

  - FlowVersion: an immutable graph of Nodes and Edges.
  - NodeConfig: the sealed set of per-type configurations (START, MESSAGE, ...).
  - Successor: one outgoing path of a node, named by its handle.
  - Session: the per-(bot, address) cursor into a flow version.
  - Variable: a typed value in bot or session scope.
*/
package domain
