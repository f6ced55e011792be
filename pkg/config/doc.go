// Package config loads and resolves the layered YAML configuration
// document that drives forecast resource creation.
//
// A document is a mapping of fragment names to fragments. The Default
// fragment is the base layer for every named fragment; an Override fragment
// (or a per-execution override) is applied last. Scalar keys replace, list
// keys replace wholesale, and Datasets may reference another fragment's
// list with {From: name}. Resolution validates eagerly and reports problems
// with the offending key path; a configuration error is fatal and never
// retried.
package config
