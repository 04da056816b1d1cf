package sensor

// Comparator is the rule a sensor value is held against its threshold with.
// A rule hit means the sensor is in a problem state.
type Comparator string

const (
	LessThanOrEqualTo    Comparator = "<="
	EqualTo              Comparator = "=="
	GreaterThanOrEqualTo Comparator = ">="
	GreaterThan          Comparator = ">"
	LessThan             Comparator = "<"

	// ComparatorNone marks a sensor whose catalog operator is not one of
	// the above. Such sensors are never flagged.
	ComparatorNone Comparator = ""
)

// ParseComparator maps an operator symbol from the catalog to a Comparator.
// Unknown symbols yield ComparatorNone.
func ParseComparator(symbol string) Comparator {
	switch c := Comparator(symbol); c {
	case LessThanOrEqualTo, EqualTo, GreaterThanOrEqualTo, GreaterThan, LessThan:
		return c
	}
	return ComparatorNone
}

// Apply evaluates "value <op> threshold". The second result is false when
// there is no rule to apply.
func (c Comparator) Apply(value, threshold float64) (hit bool, ok bool) {
	switch c {
	case LessThanOrEqualTo:
		return value <= threshold, true
	case EqualTo:
		return value == threshold, true
	case GreaterThanOrEqualTo:
		return value >= threshold, true
	case GreaterThan:
		return value > threshold, true
	case LessThan:
		return value < threshold, true
	}
	return false, false
}

// ApplyString is Apply for values that are not numbers. Ordering is
// lexicographic.
func (c Comparator) ApplyString(value, threshold string) (hit bool, ok bool) {
	switch c {
	case LessThanOrEqualTo:
		return value <= threshold, true
	case EqualTo:
		return value == threshold, true
	case GreaterThanOrEqualTo:
		return value >= threshold, true
	case GreaterThan:
		return value > threshold, true
	case LessThan:
		return value < threshold, true
	}
	return false, false
}

func (c Comparator) String() string {
	if c == ComparatorNone {
		return "none"
	}
	return string(c)
}
