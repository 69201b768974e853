// Package aggregate derives read-only views over the record set of the most
// recent terminal event: per-URL sources, price series and averages. Every
// view is recomputed from the full record slice on each call.
package aggregate
