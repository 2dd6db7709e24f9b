// Package topics owns the catalog of terport topics and decides which of them
// a generation run should produce.
//
// The catalog is an embedded YAML file grouped by release. Lookups are pure
// functions of the trigger, the last generated version and the deployed
// version; no network or storage access happens here.
package topics
