// Package attrpath implements the path grammar used to address scalar values
// inside the nested JSON documents returned by the Que cloud API.
//
// A path is a dot-separated list of segments. A segment is either a plain
// field name or a bracketed list index:
//
//	RemoteZoneInfo.[2].LiveTemp_oC
//	UserAirconSettings.EnabledZones.[0]
//	RemoteZoneInfo.[0].Sensors.A1B2C3.Battery_pc
//
// Templates additionally carry placeholder segments that stand for a
// repetition index. A bracketed placeholder ("[zone]") is replaced by a list
// index and a braced placeholder ("{sensor}") by a mapping key:
//
//	RemoteZoneInfo.[zone].Sensors.{sensor}.Connected
//
// Flatten and SubstituteIndex render indices identically, so a path produced
// by walking a document and a path produced from a template are textually
// equal for the same value. Registries rely on that equality as their only
// identity key.
package attrpath
