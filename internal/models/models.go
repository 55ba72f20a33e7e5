package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusInitiated PaymentStatus = "initiated"
	StatusPaid      PaymentStatus = "paid"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInitiated, StatusPaid:
		return true
	}
	return false
}

// CanAdvanceTo reports whether s -> next is a forward transition.
// Admin overrides do not go through this check.
func (s PaymentStatus) CanAdvanceTo(next PaymentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusInitiated || next == StatusPaid
	case StatusInitiated:
		return next == StatusInitiated || next == StatusPaid
	}
	return false
}

const (
	MinTeamSize = 2
	MaxTeamSize = 5
)

type User struct {
	UserID     string    `json:"userId" bson:"_id"`
	Name       string    `json:"name" bson:"name"`
	Department string    `json:"department,omitempty" bson:"department,omitempty"`
	Year       string    `json:"year,omitempty" bson:"year,omitempty"`
	Phone      string    `json:"phone" bson:"phone"`
	Email      string    `json:"email" bson:"email"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
}

type Member struct {
	Name  string `json:"name" bson:"name" validate:"required"`
	Phone string `json:"phone" bson:"phone" validate:"required"`
	Email string `json:"email" bson:"email" validate:"required,email"`
}

type Team struct {
	TeamID             string        `json:"teamId" bson:"_id"`
	UserID             string        `json:"userId" bson:"userId"`
	TeamName           string        `json:"teamName" bson:"teamName"`
	RegistrationID     string        `json:"registrationId" bson:"registrationId"`
	TeamSize           int           `json:"teamSize" bson:"teamSize"`
	Members            []Member      `json:"members" bson:"members"`
	PaymentStatus      PaymentStatus `json:"paymentStatus" bson:"paymentStatus"`
	CreatedAt          time.Time     `json:"createdAt" bson:"createdAt"`
	PaymentInitiatedAt *time.Time    `json:"paymentInitiatedAt,omitempty" bson:"paymentInitiatedAt,omitempty"`
	PaymentCompletedAt *time.Time    `json:"paymentCompletedAt,omitempty" bson:"paymentCompletedAt,omitempty"`
	PaymentUpdatedAt   *time.Time    `json:"paymentUpdatedAt,omitempty" bson:"paymentUpdatedAt,omitempty"`
}

// Lead is the first member, who registered the team.
func (t Team) Lead() Member {
	if len(t.Members) == 0 {
		return Member{}
	}
	return t.Members[0]
}

// MemberEmails returns the non-empty member emails in member order, without duplicates.
func (t Team) MemberEmails() []string {
	out := make([]string, 0, len(t.Members))
	seen := map[string]bool{}
	for _, m := range t.Members {
		e := strings.ToLower(strings.TrimSpace(m.Email))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

func (t Team) HasMemberEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, e := range t.MemberEmails() {
		if e == email {
			return true
		}
	}
	return false
}

func (t Team) AmountPayable(costPerMember int64) Amount {
	return Amount(int64(t.TeamSize) * costPerMember)
}

// TeamPaymentUpdate is a partial update of a team's payment fields.
type TeamPaymentUpdate struct {
	Status      PaymentStatus
	InitiatedAt *time.Time
	CompletedAt *time.Time
	UpdatedAt   *time.Time
}

type Payment struct {
	PaymentID        string        `json:"id" bson:"_id"`
	Email            string        `json:"email" bson:"email"`
	BuyerName        string        `json:"buyerName" bson:"buyerName"`
	Amount           Amount        `json:"amount" bson:"amount"`
	Status           PaymentStatus `json:"status" bson:"status"`
	GatewayPaymentID string        `json:"payment_id,omitempty" bson:"payment_id,omitempty"`
	PaymentRequestID string        `json:"paymentRequestId,omitempty" bson:"paymentRequestId,omitempty"`
	TeamID           string        `json:"teamId,omitempty" bson:"teamId,omitempty"`
	CreatedAt        time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// PaymentRequest is what the relay asked the gateway for, kept so a later
// webhook can be attributed to a team.
type PaymentRequest struct {
	RequestID string    `json:"id" bson:"_id"`
	Provider  string    `json:"provider" bson:"provider"`
	TeamID    string    `json:"teamId,omitempty" bson:"teamId,omitempty"`
	Email     string    `json:"email" bson:"email"`
	BuyerName string    `json:"buyerName" bson:"buyerName"`
	Phone     string    `json:"phone" bson:"phone"`
	Amount    Amount    `json:"amount" bson:"amount"`
	Purpose   string    `json:"purpose" bson:"purpose"`
	LongURL   string    `json:"longurl" bson:"longUrl"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

type Submission struct {
	ID                 string    `json:"id" bson:"_id"`
	UserID             string    `json:"userId" bson:"userId"`
	TeamName           string    `json:"teamName" bson:"teamName"`
	TeamLeadName       string    `json:"teamLeadName" bson:"teamLeadName"`
	CollegeName        string    `json:"collegeName" bson:"collegeName"`
	WhatsappNumber     string    `json:"whatsappNumber" bson:"whatsappNumber"`
	ProductDescription string    `json:"productDescription" bson:"productDescription"`
	Solution           string    `json:"solution" bson:"solution"`
	YoutubeLink        string    `json:"youtubeLink" bson:"youtubeLink"`
	FileURL            string    `json:"fileUrl" bson:"fileUrl"`
	RegistrationID     string    `json:"registrationId" bson:"registrationId"`
	SubmittedAt        time.Time `json:"submittedAt" bson:"submittedAt"`
}

type Sponsor struct {
	ID          string     `json:"id" bson:"_id"`
	Name        string     `json:"name" bson:"name" validate:"required"`
	Logo        string     `json:"logo" bson:"logo" validate:"omitempty,url"`
	Website     string     `json:"website,omitempty" bson:"website,omitempty" validate:"omitempty,url"`
	Description string     `json:"description" bson:"description"`
	Category    string     `json:"category" bson:"category" validate:"required"`
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty" bson:"updatedAt,omitempty"`
}

// Amount is a rupee amount. It accepts JSON numbers and numeric strings,
// since the browser client sends amount.toString().
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*a = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		*a = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("amount %q is not a number", s)
	}
	*a = Amount(v)
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(a))
}

// Payable reports whether a is finite and above zero.
func (a Amount) Payable() bool {
	v := float64(a)
	return v > 0 && !math.IsInf(v, 0)
}

// String renders the amount the way the gateway expects it ("400.00").
func (a Amount) String() string {
	return strconv.FormatFloat(float64(a), 'f', 2, 64)
}

// CreatePaymentRequest is what the relay sends to a payment gateway.
type CreatePaymentRequest struct {
	Purpose     string
	Amount      Amount
	BuyerName   string
	Email       string
	Phone       string
	RedirectURL string
	WebhookURL  string
	// TeamID is set when the relay starts the payment for a registered team.
	TeamID string
}

type PaymentLink struct {
	RequestID string `json:"id"`
	URL       string `json:"longurl"`
}

// PaymentNotification is one decoded gateway webhook. Fields the gateway did not send are empty.
type PaymentNotification struct {
	PaymentID        string
	PaymentRequestID string
	Status           string
	Email            string
	BuyerName        string
	Amount           Amount
	TeamID           string
}

// PaymentStatus maps the gateway status onto ours. Only a credited payment counts as paid.
func (n PaymentNotification) PaymentStatus() PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(n.Status)) {
	case "credit", "paid", "completed":
		return StatusPaid
	}
	return StatusPending
}
