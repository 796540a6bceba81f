package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/moneybook_backend/utils"
)

type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

var AllTransactionType = []TransactionType{
	TransactionTypeIncome,
	TransactionTypeExpense,
}

func (e TransactionType) IsValid() bool {
	switch e {
	case TransactionTypeIncome, TransactionTypeExpense:
		return true
	}
	return false
}

func (e TransactionType) String() string {
	return string(e)
}

func (e *TransactionType) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	*e = TransactionType(s)
	if !e.IsValid() {
		return utils.NewInvalidArgumentError("%s is not a valid transaction type", s)
	}
	return nil
}

func ParseTransactionType(s string) (TransactionType, error) {
	e := TransactionType(s)
	if !e.IsValid() {
		return "", utils.NewInvalidArgumentError("%s is not a valid transaction type", s)
	}
	return e, nil
}

const dateOnlyFormat = "2006-01-02"

// DateOnly is a calendar date without a time component. It travels as
// "2006-01-02" in JSON and maps to a DATE column.
type DateOnly time.Time

func NewDateOnly(year int, month time.Month, day int) DateOnly {
	return DateOnly(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

func (d DateOnly) Time() time.Time {
	t := time.Time(d)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (d DateOnly) IsZero() bool {
	return time.Time(d).IsZero()
}

func (d DateOnly) String() string {
	return time.Time(d).Format(dateOnlyFormat)
}

func (d DateOnly) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = DateOnly{}
		return nil
	}
	t, err := time.ParseInLocation(dateOnlyFormat, s, time.UTC)
	if err != nil {
		return utils.NewInvalidArgumentError("%s is not a valid date, expected YYYY-MM-DD", s)
	}
	*d = DateOnly(t)
	return nil
}

func (d DateOnly) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Time(), nil
}

func (d *DateOnly) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*d = DateOnly{}
	case time.Time:
		*d = DateOnly(time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC))
	case []byte:
		t, err := time.ParseInLocation(dateOnlyFormat, string(v), time.UTC)
		if err != nil {
			return err
		}
		*d = DateOnly(t)
	case string:
		t, err := time.ParseInLocation(dateOnlyFormat, v, time.UTC)
		if err != nil {
			return err
		}
		*d = DateOnly(t)
	default:
		return fmt.Errorf("cannot scan %T into DateOnly", value)
	}
	return nil
}

func (DateOnly) GormDataType() string {
	return "date"
}

// TagList stores a transaction's tags as a single comma joined column while
// presenting a plain JSON array to clients.
type TagList []string

func (t TagList) Value() (driver.Value, error) {
	if len(t) == 0 {
		return "", nil
	}
	return strings.Join(t, ","), nil
}

func (t *TagList) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case nil:
		*t = nil
		return nil
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return fmt.Errorf("cannot scan %T into TagList", value)
	}
	if s == "" {
		*t = nil
		return nil
	}
	*t = strings.Split(s, ",")
	return nil
}

func (t TagList) Joined() string {
	return strings.Join(t, ",")
}

func (TagList) GormDataType() string {
	return "varchar(500)"
}
