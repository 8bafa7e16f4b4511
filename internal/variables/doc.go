// Package variables resolves {{path}} templates against bot and session
// variables.
//
// A Scope merges both layers, with session values shadowing bot values of
// the same name. Paths use dots and bracket indices, both normalised to
// dots: "order.items[0].sku" and "order.items.0.sku" are the same path.
// A placeholder that resolves to nothing and has no fallback is left in
// the output untouched so misconfigured templates stay visible.
package variables
