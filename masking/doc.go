// Package masking bounds the cardinality of label values derived from request
// paths and SQL statements.
//
// Paths are first stripped of their query string and fragment
// (SanitizePath). When the router reports the matched pattern, RouteTemplate
// turns it into the label; otherwise MaskPath replaces value-like segments
// (numbers, dates, hex ids, UUIDs) with ":id". SQL statements are reduced to
// their shape by MaskQuery, which swaps literals for positional
// placeholders.
package masking
