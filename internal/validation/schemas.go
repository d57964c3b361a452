package validation

// Name identifies a payload schema.
type Name string

// Schema names, one per side-effecting operation.
const (
	SignIn            Name = "sign_in"
	SignUp            Name = "sign_up"
	OrderCreate       Name = "order_create"
	Review            Name = "review"
	Address           Name = "address"
	ProfileUpdate     Name = "profile_update"
	PaymentIntent     Name = "payment_intent"
	Refund            Name = "refund"
	Search            Name = "search"
	LoyaltyRedemption Name = "loyalty_redemption"
	SupportTicket     Name = "support_ticket"
)

// DefaultSearchLimit is applied when a search payload omits limit.
const DefaultSearchLimit = 20

// DefaultCurrency is applied when a payment intent omits currency.
const DefaultCurrency = "usd"

// registry maps each schema to a constructor for its normalized type.
var registry = map[Name]func() any{
	SignIn:            func() any { return &SignInPayload{} },
	SignUp:            func() any { return &SignUpPayload{} },
	OrderCreate:       func() any { return &OrderCreatePayload{} },
	Review:            func() any { return &ReviewPayload{} },
	Address:           func() any { return &AddressPayload{} },
	ProfileUpdate:     func() any { return &ProfileUpdatePayload{} },
	PaymentIntent:     func() any { return &PaymentIntentPayload{} },
	Refund:            func() any { return &RefundPayload{} },
	Search:            func() any { return &SearchPayload{} },
	LoyaltyRedemption: func() any { return &LoyaltyRedemptionPayload{} },
	SupportTicket:     func() any { return &SupportTicketPayload{} },
}

// Names returns every registered schema name.
func Names() []Name {
	names := make([]Name, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}

// defaulter is implemented by payloads that fill optional fields after decoding.
type defaulter interface {
	applyDefaults()
}

type SignInPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=128"`
}

type SignUpPayload struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8,max=128,password"`
	FullName string  `json:"full_name" validate:"required,min=2,max=100"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,e164"`
}

type OrderItem struct {
	MenuItemID     string         `json:"menu_item_id" validate:"required,uuid"`
	Quantity       int            `json:"quantity" validate:"gt=0"`
	Customizations map[string]any `json:"customizations,omitempty"`
	Notes          string         `json:"notes,omitempty" validate:"max=500"`
}

type DeliveryAddress struct {
	Street     string   `json:"street" validate:"required,min=5,max=200"`
	City       string   `json:"city" validate:"required,min=2,max=100"`
	PostalCode string   `json:"postal_code" validate:"required,min=3,max=20"`
	Country    string   `json:"country" validate:"required,len=2,alpha"`
	Latitude   *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude  *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

type OrderCreatePayload struct {
	Items           []OrderItem      `json:"items" validate:"required,min=1,dive"`
	DeliveryAddress *DeliveryAddress `json:"delivery_address" validate:"required"`
	PaymentMethod   string           `json:"payment_method" validate:"required,oneof=card cash"`
	Notes           string           `json:"notes,omitempty" validate:"max=500"`
	PromoCode       string           `json:"promo_code,omitempty" validate:"omitempty,max=50"`
	ScheduledFor    string           `json:"scheduled_for,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type ReviewPayload struct {
	OrderID    string   `json:"order_id" validate:"required,uuid"`
	MenuItemID string   `json:"menu_item_id,omitempty" validate:"omitempty,uuid"`
	Rating     int      `json:"rating" validate:"min=1,max=5"`
	Comment    *string  `json:"comment,omitempty" validate:"omitempty,min=10,max=1000"`
	Photos     []string `json:"photos,omitempty" validate:"omitempty,max=5,dive,url"`
}

type AddressPayload struct {
	Label      string   `json:"label,omitempty" validate:"omitempty,max=50"`
	Street     string   `json:"street" validate:"required,min=5,max=200"`
	City       string   `json:"city" validate:"required,min=2,max=100"`
	PostalCode string   `json:"postal_code" validate:"required,min=3,max=20"`
	Country    string   `json:"country" validate:"required,len=2,alpha"`
	Latitude   *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude  *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	IsDefault  bool     `json:"is_default,omitempty"`
}

type ProfileUpdatePayload struct {
	FullName           *string  `json:"full_name,omitempty" validate:"omitempty,min=2,max=100"`
	Phone              *string  `json:"phone,omitempty" validate:"omitempty,e164"`
	AvatarURL          *string  `json:"avatar_url,omitempty" validate:"omitempty,url"`
	DietaryPreferences []string `json:"dietary_preferences,omitempty" validate:"omitempty,max=10,dive,min=1,max=50"`
	MarketingOptIn     *bool    `json:"marketing_opt_in,omitempty"`
}

type PaymentIntentPayload struct {
	OrderID  string `json:"order_id" validate:"required,uuid"`
	Amount   int64  `json:"amount" validate:"gt=0,lte=100000000"`
	Currency string `json:"currency" validate:"required,len=3,alpha"`
	SaveCard bool   `json:"save_card,omitempty"`
}

func (p *PaymentIntentPayload) applyDefaults() {
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
}

type RefundPayload struct {
	OrderID         string `json:"order_id" validate:"required,uuid"`
	PaymentIntentID string `json:"payment_intent_id" validate:"required,max=255"`
	Amount          *int64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Reason          string `json:"reason" validate:"required,min=10,max=500"`
}

type SearchPayload struct {
	Query    string   `json:"query" validate:"max=100"`
	Category string   `json:"category,omitempty" validate:"omitempty,max=50"`
	MinPrice *float64 `json:"min_price,omitempty" validate:"omitempty,gte=0"`
	MaxPrice *float64 `json:"max_price,omitempty" validate:"omitempty,gt=0"`
	Rating   *float64 `json:"rating,omitempty" validate:"omitempty,gte=1,lte=5"`
	Limit    int      `json:"limit" validate:"min=1,max=100"`
	Offset   int      `json:"offset,omitempty" validate:"gte=0"`
}

func (p *SearchPayload) applyDefaults() {
	if p.Limit == 0 {
		p.Limit = DefaultSearchLimit
	}
}

type LoyaltyRedemptionPayload struct {
	RewardID string `json:"reward_id" validate:"required,uuid"`
	Points   int    `json:"points" validate:"gt=0,lte=100000"`
	OrderID  string `json:"order_id,omitempty" validate:"omitempty,uuid"`
}

type SupportTicketPayload struct {
	Subject  string `json:"subject" validate:"required,min=5,max=200"`
	Message  string `json:"message" validate:"required,min=10,max=5000"`
	Category string `json:"category" validate:"required,oneof=order payment delivery account other"`
	Priority string `json:"priority" validate:"required,oneof=low medium high urgent"`
	OrderID  string `json:"order_id,omitempty" validate:"omitempty,uuid"`
}

func (p *SupportTicketPayload) applyDefaults() {
	if p.Priority == "" {
		p.Priority = "medium"
	}
}
