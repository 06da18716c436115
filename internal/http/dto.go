package http

import (
	"time"

	"davi/internal/core"
	"davi/internal/services"
)

// Request payloads. Amounts accept JSON numbers or decimal strings.

type credentialsRequest struct {
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type profileRequest struct {
	MonthlyIncome  core.Money `json:"monthly_income"`
	MonthlyExpense core.Money `json:"monthly_expense"`
}

type movementRequest struct {
	Kind        core.Kind  `json:"kind" validate:"required,oneof=income expense"`
	Amount      core.Money `json:"amount" validate:"required"`
	Date        *core.Date `json:"date"`
	Description string     `json:"description" validate:"max=200"`
}

type distributionRequest struct {
	Kind           core.Kind  `json:"kind" validate:"required,oneof=income expense"`
	Amount         core.Money `json:"amount" validate:"required"`
	Date           *core.Date `json:"date"`
	Description    string     `json:"description" validate:"max=200"`
	Mode           core.Mode  `json:"mode" validate:"omitempty,oneof=auto explicit"`
	TargetBucketID int64      `json:"target_bucket_id" validate:"required_if=Mode explicit,gte=0"`
	Record         bool       `json:"record"`
}

type bucketRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Type        string  `json:"type" validate:"max=50"`
	Percent     float64 `json:"percent" validate:"gte=0,lte=100"`
	Description string  `json:"description" validate:"max=200"`
}

type balanceRequest struct {
	Balance core.Money `json:"balance"`
}

type giantRequest struct {
	Name         string           `json:"name" validate:"required,max=100"`
	TotalToPay   core.Money       `json:"total_to_pay" validate:"required"`
	WeeklyGoal   core.Money       `json:"weekly_goal"`
	InterestRate float64          `json:"interest_rate" validate:"gte=0"`
	Status       core.GiantStatus `json:"status" validate:"omitempty,oneof=active paid paused"`
	Priority     int              `json:"priority"`
}

type paymentRequest struct {
	Amount core.Money `json:"amount" validate:"required"`
	Date   *core.Date `json:"date"`
	Note   string     `json:"note" validate:"max=200"`
}

type billRequest struct {
	Title    string     `json:"title" validate:"required,max=100"`
	Amount   core.Money `json:"amount" validate:"required"`
	DueDate  core.Date  `json:"due_date" validate:"required"`
	Critical bool       `json:"critical"`
}

type billPaidRequest struct {
	Paid *bool `json:"paid" validate:"required"`
}

// Response payloads.

type userResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

type profileResponse struct {
	MonthlyIncome  core.Money `json:"monthly_income"`
	MonthlyExpense core.Money `json:"monthly_expense"`
	LastAllocation core.Date  `json:"last_allocation"`
}

type movementResponse struct {
	ID          int64      `json:"id"`
	BucketID    *int64     `json:"bucket_id"`
	ParentID    *int64     `json:"parent_id,omitempty"`
	Kind        core.Kind  `json:"kind"`
	Amount      core.Money `json:"amount"`
	Description string     `json:"description"`
	Date        core.Date  `json:"date"`
}

type distributionResponse struct {
	ParentID    *int64             `json:"parent_id,omitempty"`
	MovementIDs []int64            `json:"movement_ids"`
	Entries     []movementResponse `json:"entries"`
}

type bucketResponse struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Percent     float64    `json:"percent"`
	Description string     `json:"description"`
	Balance     core.Money `json:"balance"`
}

type forecastResponse struct {
	GiantID      int64      `json:"giant_id"`
	Paid         core.Money `json:"paid"`
	Remaining    core.Money `json:"remaining"`
	DailyRate    float64    `json:"daily_rate"`
	DaysToPayoff *float64   `json:"days_to_payoff"`
	Progress     float64    `json:"progress"`
}

type giantResponse struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	TotalToPay   core.Money       `json:"total_to_pay"`
	WeeklyGoal   core.Money       `json:"weekly_goal"`
	InterestRate float64          `json:"interest_rate"`
	Status       core.GiantStatus `json:"status"`
	Priority     int              `json:"priority"`
	Forecast     forecastResponse `json:"forecast"`
}

type billResponse struct {
	ID       int64               `json:"id"`
	Title    string              `json:"title"`
	Amount   core.Money          `json:"amount"`
	DueDate  core.Date           `json:"due_date"`
	Critical bool                `json:"critical"`
	Paid     bool                `json:"paid"`
	Status   services.BillStatus `json:"status"`
	DaysLeft int                 `json:"days_left"`
}

type totalsResponse struct {
	Income  core.Money `json:"income"`
	Expense core.Money `json:"expense"`
	Net     core.Money `json:"net"`
	Count   int        `json:"count"`
}

type dashboardResponse struct {
	Totals       totalsResponse     `json:"totals"`
	BucketsTotal core.Money         `json:"buckets_total"`
	Profile      profileResponse    `json:"profile"`
	Recent       []movementResponse `json:"recent"`
	DueBills     []billResponse     `json:"due_bills"`
}

type idResponse struct {
	ID int64 `json:"id"`
}

func toUser(u core.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, CreatedAt: u.CreatedAt}
}

func toProfile(p core.Profile) profileResponse {
	return profileResponse{
		MonthlyIncome:  p.MonthlyIncome,
		MonthlyExpense: p.MonthlyExpense,
		LastAllocation: p.LastAllocation,
	}
}

func toMovement(m core.Movement) movementResponse {
	return movementResponse{
		ID:          m.ID,
		BucketID:    m.BucketID,
		ParentID:    m.ParentID,
		Kind:        m.Kind,
		Amount:      m.Amount,
		Description: m.Description,
		Date:        m.Date,
	}
}

func toMovements(ms []core.Movement) []movementResponse {
	out := make([]movementResponse, len(ms))
	for i, m := range ms {
		out[i] = toMovement(m)
	}
	return out
}

func toDistribution(d core.Distribution) distributionResponse {
	resp := distributionResponse{
		MovementIDs: d.MovementIDs,
		Entries:     toMovements(d.Entries),
	}
	if resp.MovementIDs == nil {
		resp.MovementIDs = []int64{}
	}
	if d.ParentID != 0 {
		parent := d.ParentID
		resp.ParentID = &parent
	}
	return resp
}

func toBucket(b core.Bucket) bucketResponse {
	return bucketResponse{
		ID:          b.ID,
		Name:        b.Name,
		Type:        b.Type,
		Percent:     b.Percent,
		Description: b.Description,
		Balance:     b.Balance,
	}
}

func toForecast(f core.Forecast) forecastResponse {
	return forecastResponse{
		GiantID:      f.GiantID,
		Paid:         f.Paid,
		Remaining:    f.Remaining,
		DailyRate:    f.DailyRate,
		DaysToPayoff: f.DaysToPayoff,
		Progress:     f.Progress,
	}
}

func toGiant(p services.GiantProgress) giantResponse {
	g := p.Giant
	return giantResponse{
		ID:           g.ID,
		Name:         g.Name,
		TotalToPay:   g.TotalToPay,
		WeeklyGoal:   g.WeeklyGoal,
		InterestRate: g.InterestRate,
		Status:       g.Status,
		Priority:     g.Priority,
		Forecast:     toForecast(p.Forecast),
	}
}

func toBill(v services.BillView) billResponse {
	return billResponse{
		ID:       v.Bill.ID,
		Title:    v.Bill.Title,
		Amount:   v.Bill.Amount,
		DueDate:  v.Bill.DueDate,
		Critical: v.Bill.Critical,
		Paid:     v.Bill.Paid,
		Status:   v.Status,
		DaysLeft: v.DaysLeft,
	}
}

func toBills(vs []services.BillView) []billResponse {
	out := make([]billResponse, len(vs))
	for i, v := range vs {
		out[i] = toBill(v)
	}
	return out
}

func toDashboard(d services.Dashboard) dashboardResponse {
	return dashboardResponse{
		Totals: totalsResponse{
			Income:  d.Totals.Income,
			Expense: d.Totals.Expense,
			Net:     d.Totals.Net,
			Count:   d.Totals.Count,
		},
		BucketsTotal: d.BucketsTotal,
		Profile:      toProfile(d.Profile),
		Recent:       toMovements(d.Recent),
		DueBills:     toBills(d.DueBills),
	}
}
