// Package attribute holds the typed, path-addressed values populated from a
// Que status document.
//
// An Attribute wraps a single scalar Value at a fixed path such as
// "RemoteZoneInfo[0].LiveTemp_oC". A Registry keeps one Attribute per path
// and updates them in place as new documents arrive, so references taken
// by callers stay valid across refreshes.
//
// Values carry one of five kinds (null, bool, int, float, text). Coerce
// converts raw JSON scalars into a declared kind and reports
// ErrTypeCoercion when that is impossible.
package attribute
