package logging

import "log/slog"

func SessionID(id string) slog.Attr { return slog.String("session_id", id) }

func BotID(id string) slog.Attr { return slog.String("bot_id", id) }

func NodeID(id string) slog.Attr { return slog.String("node_id", id) }

func FlowVersionID(id string) slog.Attr { return slog.String("flow_version_id", id) }

// Error renders err under the "error" key, which New rewrites to "err".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
