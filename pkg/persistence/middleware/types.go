package middleware

import "github.com/aretw0/convoflow/pkg/ports"

// Middleware allows wrapping a LogStore to add behavior.
type Middleware func(ports.LogStore) ports.LogStore

// VariableMiddleware allows wrapping a VariableStore to add behavior.
type VariableMiddleware func(ports.VariableStore) ports.VariableStore

// Logs applies mws to store, outermost first.
func Logs(store ports.LogStore, mws ...Middleware) ports.LogStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}

// Variables applies mws to store, outermost first.
func Variables(store ports.VariableStore, mws ...VariableMiddleware) ports.VariableStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
