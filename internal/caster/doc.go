// Package caster holds the named value transforms applied to raw filter
// strings.
//
// A raw value of the form name(argument) is looked up in a Registry. When
// name is registered the caster converts argument into a typed ir.IRValue
// or fails; when it is not, the raw string is used unchanged.
//
//	name=lowercase(ACME)      → "acme"
//	count=int(5)              → 5
//	name=starts(project)      → /^project/i
//	name=whatever(x)          → "whatever(x)"
package caster
