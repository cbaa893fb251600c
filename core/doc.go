// Package core contains canonical lead-ingestion domain contracts and
// entities. Lower-level adapters must depend on this package; core must not
// depend on provider-specific or transport-specific adapters.
package core
