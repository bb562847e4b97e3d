// Package nodetype models node-type definitions as served by the backend's
// object_info endpoint.
//
// A Definition describes the inputs of one node type. Each input carries a
// descriptor whose first element is either a type name ("INT", "MODEL") or,
// for choice inputs, the list of allowed values. Newer backends also send
// choice inputs as ("COMBO", {"options": [...]}); both shapes are accepted.
//
// Definitions are immutable once decoded. Installing one into the type table
// is the job of internal/registry.
package nodetype
