// Package ai talks to OpenAI-compatible chat completion providers.
//
// Two Completer implementations are provided: HTTPCompleter posts to
// {baseURL}/chat/completions directly, EinoCompleter goes through the
// cloudwego/eino OpenAI chat model. Both report HTTP failures as *Error so
// callers can tell permanent (4xx) from transient failures.
package ai
