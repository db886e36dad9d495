package models

import (
	"encoding/json"
	"time"

	"github.com/danielhkuo/gastroswipe/consensus"
)

// Group member roles
const (
	RoleMember = "member"
	RoleHost   = "host"
	RoleOwner  = "owner"
)

// Round status constants
const (
	StatusCreated = "created"
	StatusOpen    = "open"
	StatusClosed  = "closed"
)

// Group event kinds
const (
	EventRoundStart     = "round_start"
	EventHostPrefs      = "host_prefs"
	EventSwipeResults   = "swipe_results"
	EventPublishResults = "publish_results"
	EventForceResults   = "force_results"
	EventPlayerJoin     = "player_join"
)

// Error codes returned alongside 4xx/5xx statuses
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
	CodeConfigMissing    = "CONFIG_MISSING"
	CodeEmailTaken       = "EMAIL_TAKEN"
	CodeInvalidCreds     = "INVALID_CREDENTIALS"
	CodeInviteExpired    = "INVITE_EXPIRED"
	CodeInviteExhausted  = "INVITE_EXHAUSTED"
	CodeOwnerCannotLeave = "OWNER_CANNOT_LEAVE"
	CodeOwnerRoleFixed   = "OWNER_ROLE_FIXED"
	CodeControlMessage   = "CONTROL_MESSAGE_REJECTED"
	CodeRoundActive      = "ROUND_ACTIVE"
	CodeRoundState       = "ROUND_STATE"
	CodeNoCandidates     = "NO_CANDIDATES"
	CodeUnknownCandidate = "UNKNOWN_CANDIDATE"
	CodeRoundIncomplete  = "ROUND_INCOMPLETE"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
)

// Envelopes

type DataResponse struct {
	Data any `json:"data"`
	Meta any `json:"meta,omitempty"`
}

type ItemsResponse struct {
	Items any `json:"items"`
	Meta  any `json:"meta,omitempty"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type ListMeta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Request types

type SignUpRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"required,min=2,max=40"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AvatarRequest struct {
	AvatarSeed string `json:"avatar_seed" validate:"required,min=1,max=64"`
}

type CreateGroupRequest struct {
	Name string `json:"name" validate:"required,min=2,max=80"`
}

type CreateInviteRequest struct {
	ExpiresInHours *int `json:"expires_in_hours" validate:"omitempty,min=1,max=720"`
	MaxUses        *int `json:"max_uses" validate:"omitempty,min=0,max=1000"`
}

type RedeemInviteRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type SetRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=member host"`
}

type PostMessageRequest struct {
	Content string `json:"content" validate:"required,min=1,max=2000"`
}

// RoundPrefs filter the restaurants offered in a round.
// MaxPrice counts '$' characters in price_tag.
type RoundPrefs struct {
	City      string   `json:"city,omitempty" validate:"omitempty,max=80"`
	Cuisines  []string `json:"cuisines,omitempty" validate:"omitempty,max=10,dive,min=1,max=40"`
	MaxPrice  int      `json:"max_price,omitempty" validate:"omitempty,min=1,max=4"`
	MinRating float64  `json:"min_rating,omitempty" validate:"omitempty,gte=0,lte=5"`
	Limit     int      `json:"limit,omitempty" validate:"omitempty,min=1,max=50"`
}

type SubmitSwipesRequest struct {
	AcceptedIDs []int64 `json:"accepted_ids" validate:"max=200"`
}

type CloseRoundRequest struct {
	Force bool `json:"force"`
}

type CreateRestaurantRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=200"`
	Address     string   `json:"address" validate:"max=300"`
	AvgRating   float64  `json:"avg_rating" validate:"gte=0,lte=5"`
	ReviewCount int      `json:"review_count" validate:"gte=0"`
	PriceTag    string   `json:"price_tag" validate:"max=4"`
	ParentCity  string   `json:"parent_city" validate:"required,min=1,max=80"`
	Cuisines    []string `json:"cuisines" validate:"max=20,dive,min=1,max=40"`
}

type UpdateRestaurantRequest struct {
	Name        *string   `json:"name" validate:"omitempty,min=1,max=200"`
	Address     *string   `json:"address" validate:"omitempty,max=300"`
	AvgRating   *float64  `json:"avg_rating" validate:"omitempty,gte=0,lte=5"`
	ReviewCount *int      `json:"review_count" validate:"omitempty,gte=0"`
	PriceTag    *string   `json:"price_tag" validate:"omitempty,max=4"`
	ParentCity  *string   `json:"parent_city" validate:"omitempty,min=1,max=80"`
	Cuisines    *[]string `json:"cuisines" validate:"omitempty,max=20,dive,min=1,max=40"`
	IsActive    *bool     `json:"is_active"`
}

// Response types

// Token is only set on sign-up and sign-in, for clients that send a Bearer header
type SessionResponse struct {
	User      User      `json:"user"`
	IsAdmin   bool      `json:"is_admin"`
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"token,omitempty"`
}

type AvatarResponse struct {
	UserID     string `json:"user_id"`
	AvatarSeed string `json:"avatar_seed"`
}

type CreateGroupResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	InviteCode string `json:"invite_code"`
}

type InviteResponse struct {
	Code      string    `json:"code"`
	InviteURL string    `json:"invite_url"`
	ExpiresAt time.Time `json:"expires_at"`
	MaxUses   int       `json:"max_uses"`
}

type RedeemInviteResponse struct {
	GroupID string `json:"group_id"`
	Role    string `json:"role"`
	Joined  bool   `json:"joined"`
}

type SubmitSwipesResponse struct {
	RoundID     string    `json:"round_id"`
	AcceptedIDs []int64   `json:"accepted_ids"`
	SubmittedAt time.Time `json:"submitted_at"`
	Replaced    bool      `json:"replaced"`
}

type CloseRoundResponse struct {
	Round   Round            `json:"round"`
	Results consensus.Result `json:"results"`
}

type ResultsMeta struct {
	Members int    `json:"members"`
	Status  string `json:"status"`
}

// Domain types

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type GroupSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type Member struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

type GroupDetail struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Role      string    `json:"role"`
	Members   []Member  `json:"members"`
	Online    int       `json:"online"`
}

type Message struct {
	ID          string    `json:"id"`
	GroupID     string    `json:"group_id"`
	UserID      string    `json:"user_id"`
	AuthorAlias string    `json:"author_alias"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

type Event struct {
	ID        int64           `json:"id"`
	GroupID   string          `json:"group_id"`
	RoundID   *string         `json:"round_id,omitempty"`
	UserID    string          `json:"user_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type Round struct {
	ID        string     `json:"id"`
	GroupID   string     `json:"group_id"`
	StartedBy string     `json:"started_by"`
	Status    string     `json:"status"`
	Prefs     RoundPrefs `json:"prefs"`
	Forced    bool       `json:"forced"`
	CreatedAt time.Time  `json:"created_at"`
	OpenedAt  *time.Time `json:"opened_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

type RestaurantGeo struct {
	Lat              float64   `json:"lat"`
	Lng              float64   `json:"lng"`
	PlaceID          string    `json:"place_id"`
	FormattedAddress string    `json:"formatted_address"`
	Accuracy         string    `json:"accuracy"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Restaurant struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Address     string         `json:"address"`
	AvgRating   float64        `json:"avg_rating"`
	ReviewCount int            `json:"review_count"`
	PriceTag    string         `json:"price_tag"`
	ParentCity  string         `json:"parent_city"`
	Cuisines    []string       `json:"cuisines"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	Geo         *RestaurantGeo `json:"geo,omitempty"`
}

type CuisineCount struct {
	Cuisine         string `json:"cuisine"`
	RestaurantCount int    `json:"restaurant_count"`
}

type CityCount struct {
	City            string `json:"city"`
	RestaurantCount int    `json:"restaurant_count"`
}
