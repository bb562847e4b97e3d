// Package workspace loads the graph a headless process mirrors and builds
// it into a graph store.
//
// A workspace is one HCL file, or a directory of them, with one node block
// per instance:
//
//	node "KSampler" "3" {
//	  pos        = [10, 20]
//	  size       = [200, 100]
//	  widgets    = { seed = 42, sampler_name = "euler" }
//	  properties = { note = "x" }
//	}
//
// Populate fetches the definition of every type used, constructs instances
// from the definitions and applies the seeded values. A type whose
// definition cannot be fetched is built from its seeded widgets alone.
package workspace
