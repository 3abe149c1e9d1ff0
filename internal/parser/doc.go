// Package parser turns a flat request parameter set into filter
// predicates and the reserved cursor controls.
//
// Reserved keys:
//
//	sort=-createdAt,name     ordered sort, "-" for descending
//	limit=20 skip=40         non-negative integers (limit 0 = default)
//	fields=name,slug         inclusion projection ("select" is an alias)
//	fields=-body             exclusion projection
//	filter={"$or":[...]}     JSON blob or URL query string
//
// Every other key is a filter field:
//
//	name=Project Title 1     equality
//	age[gte]=int(18)         bracket operator
//	age=gt(int(18))          operator function
//	slug=a&slug=b            repeated values → in
//	name=/^proj/i            regex literal
//	name=starts(proj)        caster
//	!deletedAt               field must not exist
//
// qType, qName, childOpts and populate are left in Parsed.Rest for the
// compiler.
package parser
