package gradeentry

import "strconv"

// Field identifies an editable cell of a roster row.
type Field string

const (
	FieldScore   Field = "score"
	FieldComment Field = "comment"
)

// Valid reports whether the field is known.
func (f Field) Valid() bool {
	return f == FieldScore || f == FieldComment
}

// Key names handled by the navigation policy.
const (
	KeyTab   = "Tab"
	KeyEnter = "Enter"
)

// Focus is the cell the rendering layer should focus.
type Focus struct {
	StudentID uint  `json:"student_id"`
	Field     Field `json:"field"`
}

// Key is a key press reported by the client on a table cell.
type Key struct {
	Name string `json:"key"`
	Ctrl bool   `json:"ctrl"`
}

// quickDigit returns the chord value when the key is Ctrl plus a digit of the quick score set.
func (k Key) quickDigit() (float64, bool) {
	if !k.Ctrl || len(k.Name) != 1 || k.Name[0] < '0' || k.Name[0] > '9' {
		return 0, false
	}
	value, err := strconv.Atoi(k.Name)
	if err != nil {
		return 0, false
	}
	if !IsQuickScore(float64(value)) {
		return 0, false
	}
	return float64(value), true
}

// Navigate computes the focus after a Tab or Enter press in the given display order.
// Any other key leaves the focus where it is.
func Navigate(order []uint, from Focus, key string) Focus {
	switch {
	case from.Field == FieldScore && key == KeyTab:
		return Focus{StudentID: from.StudentID, Field: FieldComment}
	case key == KeyEnter, from.Field == FieldComment && key == KeyTab:
		return advance(order, from)
	default:
		return from
	}
}

// advance moves to the next row's score field; on the last row (or an unlisted row) it stays put.
func advance(order []uint, from Focus) Focus {
	for idx, id := range order {
		if id != from.StudentID {
			continue
		}
		if idx+1 < len(order) {
			return Focus{StudentID: order[idx+1], Field: FieldScore}
		}
		break
	}
	return from
}
