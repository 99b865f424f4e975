package sqlgen

// FuncID enumerates the built-in functions. Dispatch is by identifier, not
// by name string: names resolve to identifiers once, during normalization,
// so an unknown function surfaces immediately rather than deep inside
// recursive descent.
type FuncID int

const (
	FuncUnknown FuncID = iota

	// Existence and filtering
	FuncWhere
	FuncSelect
	FuncExists
	FuncAll
	FuncEmpty
	FuncNot
	FuncCount
	FuncDistinct
	FuncIsDistinct

	// Subsetting
	FuncFirst
	FuncLast
	FuncTail
	FuncSkip
	FuncTake
	FuncSingle

	// Combining
	FuncUnion
	FuncCombine
	FuncIntersect
	FuncExclude

	// Types and conversion
	FuncOfType
	FuncIif
	FuncToString
	FuncToInteger
	FuncToDecimal

	// Aggregation and recursion
	FuncAggregate
	FuncRepeat

	// Strings
	FuncLower
	FuncUpper
	FuncLength
	FuncStartsWith
	FuncEndsWith
	FuncContains
	FuncIndexOf
	FuncSubstring
	FuncReplace

	// Math
	FuncAbs
	FuncCeiling
	FuncFloor
	FuncRound
	FuncSqrt
	FuncTruncate

	// Temporal
	FuncNow
	FuncToday
	FuncTimeOfDay

	// Store access
	FuncGetResourceKey
)

// funcRegistry is the static name-to-identifier registry, consulted once per
// call node during translation.
var funcRegistry = map[string]FuncID{
	"where":          FuncWhere,
	"select":         FuncSelect,
	"exists":         FuncExists,
	"all":            FuncAll,
	"empty":          FuncEmpty,
	"not":            FuncNot,
	"count":          FuncCount,
	"distinct":       FuncDistinct,
	"isDistinct":     FuncIsDistinct,
	"first":          FuncFirst,
	"last":           FuncLast,
	"tail":           FuncTail,
	"skip":           FuncSkip,
	"take":           FuncTake,
	"single":         FuncSingle,
	"union":          FuncUnion,
	"combine":        FuncCombine,
	"intersect":      FuncIntersect,
	"exclude":        FuncExclude,
	"ofType":         FuncOfType,
	"iif":            FuncIif,
	"toString":       FuncToString,
	"toInteger":      FuncToInteger,
	"toDecimal":      FuncToDecimal,
	"aggregate":      FuncAggregate,
	"repeat":         FuncRepeat,
	"lower":          FuncLower,
	"upper":          FuncUpper,
	"length":         FuncLength,
	"startsWith":     FuncStartsWith,
	"endsWith":       FuncEndsWith,
	"contains":       FuncContains,
	"indexOf":        FuncIndexOf,
	"substring":      FuncSubstring,
	"replace":        FuncReplace,
	"abs":            FuncAbs,
	"ceiling":        FuncCeiling,
	"floor":          FuncFloor,
	"round":          FuncRound,
	"sqrt":           FuncSqrt,
	"truncate":       FuncTruncate,
	"now":            FuncNow,
	"today":          FuncToday,
	"timeOfDay":      FuncTimeOfDay,
	"getResourceKey": FuncGetResourceKey,
}

// resolveFunc resolves a function name to its identifier.
func resolveFunc(name string) (FuncID, bool) {
	id, ok := funcRegistry[name]
	return id, ok
}
