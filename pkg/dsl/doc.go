/*
Package dsl provides a Go DSL for programmatically constructing convoflow flow versions.

It allows developers to define flows using a fluent builder instead of JSON or
YAML documents. This is particularly useful for unit tests and for flows
generated at runtime.

Example usage:

	b := dsl.New("onboarding")

	b.Start("start").Go("ask_name")
	b.Input("ask_name", "What is your name?", "name").Go("greet")
	b.Message("greet", "Nice to meet you, {{name}}!").Go("end")
	b.End("end")

	fv, err := b.Build()
	// ... register fv with a flow repository
*/
package dsl
