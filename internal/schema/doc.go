// Package schema declares which paths a Que status document is expected to
// contain, the kind each value is coerced to, and whether commands may
// target it.
//
// A Catalog is built from Groups. A group with a repetition placeholder
// ("[zone]") expands each entry once per index up to its bound; keyed
// placeholders ("{sensor}") are expanded from the keys present in the
// document being applied. Apply treats a declared path that is absent from
// the document as a skip, not an error.
//
// Default returns the built-in Actron Que catalog; LoadFile reads an
// override from YAML.
package schema
