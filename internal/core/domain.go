package core

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

const (
	ModeAuto     Mode = "auto"
	ModeExplicit Mode = "explicit"
)

const (
	GiantActive GiantStatus = "active"
	GiantPaid   GiantStatus = "paid"
	GiantPaused GiantStatus = "paused"
)

const (
	DefaultBucketType = "generic"
	MaxDescriptionLen = 200
	MinUsernameLen    = 3
	MinPasswordLen    = 4
)

type (
	Kind        string
	Mode        string
	GiantStatus string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	User struct {
		ID           int64
		Name         string
		PasswordHash string
		CreatedAt    time.Time
	}

	// Profile holds per-user monthly figures shown on the dashboard.
	Profile struct {
		UserID         int64
		MonthlyIncome  Money
		MonthlyExpense Money
		LastAllocation Date
	}

	Bucket struct {
		ID          int64
		UserID      int64
		Name        string
		Description string
		Percent     float64 // share of auto distributions, 0-100
		Balance     Money   // may go negative
		Type        string
	}

	Movement struct {
		ID          int64
		UserID      int64
		BucketID    *int64 // nil for unallocated rows or after the bucket is deleted
		ParentID    *int64 // set on split entries recorded together with their parent
		Kind        Kind
		Amount      Money
		Description string
		Date        Date
		CreatedAt   time.Time
	}

	Giant struct {
		ID           int64
		UserID       int64
		Name         string
		TotalToPay   Money
		WeeklyGoal   Money
		InterestRate float64 // monthly %, informational
		Status       GiantStatus
		Priority     int
		CreatedAt    time.Time
	}

	GiantPayment struct {
		ID      int64
		UserID  int64
		GiantID int64
		Amount  Money
		Date    Date
		Note    string
	}

	Bill struct {
		ID       int64
		UserID   int64
		Title    string
		Amount   Money
		DueDate  Date
		Critical bool
		Paid     bool
	}
)

func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// Sign returns +1 for income and -1 for expense.
func (k Kind) Sign() int64 {
	if k == KindExpense {
		return -1
	}
	return 1
}

func (m Mode) Valid() bool {
	return m == ModeAuto || m == ModeExplicit
}

func (s GiantStatus) Valid() bool {
	switch s {
	case GiantActive, GiantPaid, GiantPaused:
		return true
	}
	return false
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// Today returns the current calendar day.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate accepts ISO dates (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DescriptionTooLong reports whether s exceeds MaxDescriptionLen characters.
func DescriptionTooLong(s string) bool {
	return utf8.RuneCountInString(s) > MaxDescriptionLen
}

// ValidateDescription trims s and enforces the length limit.
func ValidateDescription(s string) (string, error) {
	s = strings.TrimSpace(s)
	if DescriptionTooLong(s) {
		return "", ErrDescriptionTooLong
	}
	return s, nil
}

func (m Movement) Validate() error {
	if !m.Kind.Valid() {
		return ErrInvalidKind
	}
	if err := m.Amount.Validate(); err != nil {
		return err
	}
	if err := m.Date.Validate(); err != nil {
		return err
	}
	if DescriptionTooLong(m.Description) {
		return ErrDescriptionTooLong
	}
	return nil
}

func (b Bucket) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyName
	}
	if b.Percent < 0 || b.Percent > 100 {
		return ErrInvalidPercent
	}
	return nil
}

// Normalize trims text fields and applies the default type tag.
func (b Bucket) Normalize() Bucket {
	b.Name = strings.TrimSpace(b.Name)
	b.Description = strings.TrimSpace(b.Description)
	b.Type = strings.ToLower(strings.TrimSpace(b.Type))
	if b.Type == "" {
		b.Type = DefaultBucketType
	}
	return b
}

func (g Giant) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if err := g.TotalToPay.Validate(); err != nil {
		return err
	}
	if g.WeeklyGoal.Cents < 0 {
		return ErrNegativeValue
	}
	if g.InterestRate < 0 {
		return ErrNegativeValue
	}
	if g.Status != "" && !g.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

func (p GiantPayment) Validate() error {
	if p.GiantID <= 0 {
		return ErrNotFound
	}
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	return p.Date.Validate()
}

func (b Bill) Validate() error {
	if strings.TrimSpace(b.Title) == "" {
		return ErrEmptyName
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	return b.DueDate.Validate()
}

// ValidateCredentials trims the name and checks both minimum lengths.
func ValidateCredentials(name, password string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) < MinUsernameLen || len(password) < MinPasswordLen {
		return "", ErrTooShort
	}
	return name, nil
}
